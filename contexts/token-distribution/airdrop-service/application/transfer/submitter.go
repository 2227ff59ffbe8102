package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	application "faucet/contexts/token-distribution/airdrop-service/application"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/domain/services"
	"faucet/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

// Submitter signs and submits funding transfers. Nonces come from the shared
// sequencer and the sequence is held for the whole sign+submit step, so two
// concurrent submissions can never carry the same nonce.
type Submitter struct {
	Chain  ports.ChainClient
	Nonces *services.NonceSequencer
	Logger *slog.Logger
}

func (s Submitter) Submit(
	ctx context.Context,
	recipient valueobjects.Address,
	amount *big.Int,
) (ports.SubmissionHandle, error) {
	logger := application.ResolveLogger(s.Logger)
	if s.Chain == nil {
		return nil, domainerrors.ErrChainUnavailable
	}
	if s.Nonces == nil {
		return nil, domainerrors.ErrIdentityNotLoaded
	}

	var handle ports.SubmissionHandle
	err := s.Nonces.WithNext(ctx, s.Chain.NextNonce, func(nonce uint64) error {
		submitted, err := s.Chain.SubmitTransfer(ctx, ports.TransferRequest{
			Recipient: recipient,
			Amount:    amount,
			Nonce:     nonce,
		})
		if err != nil {
			return err
		}
		handle = submitted
		return nil
	})
	if err != nil {
		if handle == nil && isContextError(err) && !isDomainError(err) {
			// Gave up waiting for the sequence; nothing was sent.
			err = fmt.Errorf("%w: %v", domainerrors.ErrChainUnavailable, err)
		}
		logger.Warn("transfer submission failed",
			"event", "airdrop_transfer_submit_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", recipient.String(),
			"error", err.Error(),
		)
		return nil, err
	}

	logger.Info("transfer submitted",
		"event", "airdrop_transfer_submitted",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"recipient", recipient.String(),
		"tx_hash", handle.TxHash(),
		"nonce", handle.Nonce(),
	)
	return handle, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isDomainError(err error) bool {
	return errors.Is(err, domainerrors.ErrSubmissionRejected) ||
		errors.Is(err, domainerrors.ErrFundingExhausted) ||
		errors.Is(err, domainerrors.ErrTransactionDropped) ||
		errors.Is(err, domainerrors.ErrChainUnavailable) ||
		errors.Is(err, domainerrors.ErrSigningFailed)
}
