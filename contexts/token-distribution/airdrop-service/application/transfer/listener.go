package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	application "faucet/contexts/token-distribution/airdrop-service/application"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/domain/services"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

const defaultFinalityTimeout = 2 * time.Minute

// Listener resolves a submission to exactly one terminal outcome. The handle
// is released on every return path. When a transfer leaves the pool without
// being finalized its nonce may be unused, so the sequencer is resynced.
type Listener struct {
	Chain   ports.ChainClient
	Nonces  *services.NonceSequencer
	Timeout time.Duration
	Logger  *slog.Logger
}

func (l Listener) AwaitOutcome(
	ctx context.Context,
	handle ports.SubmissionHandle,
	amount *big.Int,
) (ports.FinalityOutcome, error) {
	if handle == nil {
		return ports.FinalityOutcome{}, fmt.Errorf("%w: no submission handle", domainerrors.ErrChainUnavailable)
	}
	defer handle.Release()

	logger := application.ResolveLogger(l.Logger).With(
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"tx_hash", handle.TxHash(),
	)

	ctx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			logger.Warn("finality wait expired",
				"event", "airdrop_finality_timeout",
				"error", ctx.Err().Error(),
			)
			l.resync()
			return ports.FinalityOutcome{}, fmt.Errorf("%w: %v", domainerrors.ErrFinalityTimeout, ctx.Err())

		case err, ok := <-handle.Errors():
			l.resync()
			if !ok {
				return ports.FinalityOutcome{}, fmt.Errorf("%w: subscription closed", domainerrors.ErrChainUnavailable)
			}
			logger.Error("finality subscription failed",
				"event", "airdrop_finality_subscription_failed",
				"error", err.Error(),
			)
			return ports.FinalityOutcome{}, fmt.Errorf("%w: %v", domainerrors.ErrChainUnavailable, err)

		case status, ok := <-handle.Statuses():
			if !ok {
				l.resync()
				return ports.FinalityOutcome{}, fmt.Errorf("%w: status stream closed", domainerrors.ErrChainUnavailable)
			}
			switch {
			case status.Kind == ports.TxStatusInBlock:
				logger.Info("transfer included in block",
					"event", "airdrop_transfer_in_block",
					"block_hash", status.BlockHash,
				)
			case status.Kind == ports.TxStatusFinalized:
				return l.resolveFinalized(ctx, logger, handle, status, amount)
			case status.Kind.Abandoned():
				logger.Warn("transfer abandoned before finality",
					"event", "airdrop_transfer_abandoned",
					"status", string(status.Kind),
				)
				l.resync()
				return ports.FinalityOutcome{}, fmt.Errorf("%w: %s", domainerrors.ErrTransactionDropped, status.Kind)
			}
		}
	}
}

func (l Listener) resolveFinalized(
	ctx context.Context,
	logger *slog.Logger,
	handle ports.SubmissionHandle,
	status ports.TxStatus,
	amount *big.Int,
) (ports.FinalityOutcome, error) {
	result, err := l.Chain.InspectExecution(ctx, ports.InspectRequest{
		BlockHash: status.BlockHash,
		TxHash:    handle.TxHash(),
		Amount:    amount,
	})
	if err != nil {
		logger.Error("finalized block inspection failed",
			"event", "airdrop_finality_inspect_failed",
			"block_hash", status.BlockHash,
			"error", err.Error(),
		)
		if errors.Is(err, domainerrors.ErrChainUnavailable) {
			return ports.FinalityOutcome{}, err
		}
		return ports.FinalityOutcome{}, fmt.Errorf("%w: %v", domainerrors.ErrChainUnavailable, err)
	}

	if !result.Success {
		logger.Warn("transfer finalized with failed execution",
			"event", "airdrop_transfer_execution_failed",
			"block_hash", status.BlockHash,
			"funding_exhausted", result.FundingExhausted,
			"reason", result.Reason,
		)
		if result.FundingExhausted {
			return ports.FinalityOutcome{}, fmt.Errorf("%w: %s", domainerrors.ErrFundingExhausted, result.Reason)
		}
		return ports.FinalityOutcome{}, fmt.Errorf("%w: %s", domainerrors.ErrTransferFailed, result.Reason)
	}

	logger.Info("transfer finalized",
		"event", "airdrop_transfer_finalized",
		"block_hash", status.BlockHash,
	)
	return ports.FinalityOutcome{
		TxHash:    handle.TxHash(),
		BlockHash: status.BlockHash,
	}, nil
}

func (l Listener) resync() {
	if l.Nonces != nil {
		l.Nonces.Invalidate()
	}
}

func (l Listener) timeout() time.Duration {
	if l.Timeout <= 0 {
		return defaultFinalityTimeout
	}
	return l.Timeout
}
