package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	application "faucet/contexts/token-distribution/airdrop-service/application"
	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

const (
	defaultGeoTimeout  = 2 * time.Second
	defaultFlowTimeout = 3 * time.Minute
)

type DisburseCommand struct {
	Recipient string
	IPAddress string
}

type DisburseResult struct {
	Recipient string
	Amount    *big.Int
	TxHash    string
	BlockHash string
}

// DisburseUseCase is the dedup gate: reserve -> submit -> await finality ->
// commit. The reservation is the only ordering authority between concurrent
// requests for the same recipient.
type DisburseUseCase struct {
	Repository    ports.DisbursementRepository
	Addresses     ports.AddressCodec
	Chain         ports.ChainClient
	Submitter     ports.TransferSubmitter
	Listener      ports.FinalityListener
	Geo           ports.GeoLocator
	Clock         ports.Clock
	IDGenerator   ports.IDGenerator
	Amount        *big.Int
	GeoTimeout    time.Duration
	FlowTimeout   time.Duration
	ReclaimFailed bool
	Logger        *slog.Logger
}

// Execute runs one disbursement. Once the reservation is granted the flow
// is detached from the caller's cancellation so a disconnecting client can
// not abandon a submitted transfer halfway through finality tracking.
func (u DisburseUseCase) Execute(ctx context.Context, cmd DisburseCommand) (DisburseResult, error) {
	logger := application.ResolveLogger(u.Logger)
	if u.Amount == nil || u.Amount.Sign() <= 0 {
		return DisburseResult{}, fmt.Errorf("airdrop amount is not configured")
	}

	address, err := u.Addresses.Parse(strings.TrimSpace(cmd.Recipient))
	if err != nil {
		logger.Info("disbursement rejected: invalid address",
			"event", "airdrop_invalid_address",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", cmd.Recipient,
		)
		return DisburseResult{}, domainerrors.ErrInvalidAddress
	}
	recipient := address.String()

	// Requests arriving while the node is unreachable fail before any
	// reservation is made so the client can simply retry.
	if u.Chain != nil {
		if err := u.Chain.Ready(); err != nil {
			logger.Warn("disbursement rejected: chain not ready",
				"event", "airdrop_chain_not_ready",
				"module", "token-distribution/airdrop-service",
				"layer", "application",
				"recipient", recipient,
				"error", err.Error(),
			)
			return DisburseResult{}, err
		}
	}

	metadata := u.locate(ctx, logger, cmd.IPAddress)

	flowCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.flowTimeout())
	defer cancel()

	if err := u.Repository.Reserve(flowCtx, ports.ReserveRequest{
		Recipient:     recipient,
		Metadata:      metadata,
		Now:           u.now(),
		ReclaimFailed: u.ReclaimFailed,
	}); err != nil {
		if errors.Is(err, domainerrors.ErrDuplicatedAirdrop) {
			logger.Info("disbursement rejected: duplicate",
				"event", "airdrop_duplicate_rejected",
				"module", "token-distribution/airdrop-service",
				"layer", "application",
				"recipient", recipient,
			)
			return DisburseResult{}, err
		}
		logger.Error("reservation failed",
			"event", "airdrop_reserve_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", recipient,
			"error", err.Error(),
		)
		return DisburseResult{}, err
	}

	logger.Info("reservation granted",
		"event", "airdrop_reservation_granted",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"recipient", recipient,
	)

	handle, err := u.Submitter.Submit(flowCtx, address, u.Amount)
	if err != nil {
		if application.NeverLeftProcess(err) {
			u.release(flowCtx, logger, recipient)
			return DisburseResult{}, err
		}
		u.fail(flowCtx, logger, recipient, "", err)
		return DisburseResult{}, err
	}

	if err := u.Repository.MarkSubmitted(flowCtx, recipient, handle.TxHash(), handle.Nonce(), u.now()); err != nil {
		// The transfer is already in the pool; keep tracking it and let the
		// terminal commit carry the hash.
		logger.Warn("mark submitted failed",
			"event", "airdrop_mark_submitted_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", recipient,
			"tx_hash", handle.TxHash(),
			"error", err.Error(),
		)
	}

	outcome, err := u.Listener.AwaitOutcome(flowCtx, handle, u.Amount)
	if err != nil {
		u.fail(flowCtx, logger, recipient, handle.TxHash(), err)
		return DisburseResult{}, err
	}

	eventID, err := u.IDGenerator.NewID(flowCtx)
	if err == nil {
		err = u.Repository.Commit(flowCtx, ports.CommitRequest{
			Recipient: recipient,
			Outcome:   entities.ConfirmedOutcome(u.Amount, outcome.TxHash, outcome.BlockHash, u.now()),
			EventID:   eventID,
		})
	}
	if err != nil {
		// The transfer is final on chain; the record stays live for the
		// sweeper and operators to reconcile from this log line.
		logger.Error("commit of confirmed disbursement failed",
			"event", "airdrop_commit_confirmed_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", recipient,
			"tx_hash", outcome.TxHash,
			"block_hash", outcome.BlockHash,
			"error", err.Error(),
		)
		return DisburseResult{}, err
	}

	logger.Info("disbursement confirmed",
		"event", "airdrop_disbursement_confirmed",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"recipient", recipient,
		"tx_hash", outcome.TxHash,
		"block_hash", outcome.BlockHash,
		"amount", u.Amount.String(),
	)

	return DisburseResult{
		Recipient: recipient,
		Amount:    new(big.Int).Set(u.Amount),
		TxHash:    outcome.TxHash,
		BlockHash: outcome.BlockHash,
	}, nil
}

func (u DisburseUseCase) fail(
	ctx context.Context,
	logger *slog.Logger,
	recipient string,
	txHash string,
	cause error,
) {
	reason := application.FailureReason(cause)
	eventID, err := u.IDGenerator.NewID(ctx)
	if err == nil {
		err = u.Repository.Commit(ctx, ports.CommitRequest{
			Recipient: recipient,
			Outcome:   entities.FailedOutcome(reason, txHash, u.now()),
			EventID:   eventID,
		})
	}
	if err != nil {
		logger.Error("commit of failed disbursement failed",
			"event", "airdrop_commit_failed_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", recipient,
			"tx_hash", txHash,
			"reason", reason,
			"error", err.Error(),
		)
		return
	}
	logger.Warn("disbursement failed",
		"event", "airdrop_disbursement_failed",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"recipient", recipient,
		"tx_hash", txHash,
		"reason", reason,
		"error", cause.Error(),
	)
}

func (u DisburseUseCase) release(ctx context.Context, logger *slog.Logger, recipient string) {
	if err := u.Repository.Release(ctx, recipient); err != nil {
		logger.Error("reservation release failed",
			"event", "airdrop_release_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"recipient", recipient,
			"error", err.Error(),
		)
		return
	}
	logger.Info("reservation released",
		"event", "airdrop_reservation_released",
		"module", "token-distribution/airdrop-service",
		"layer", "application",
		"recipient", recipient,
	)
}

func (u DisburseUseCase) locate(ctx context.Context, logger *slog.Logger, ip string) entities.Metadata {
	metadata := entities.Metadata{IPAddress: ip}
	if u.Geo == nil || strings.TrimSpace(ip) == "" {
		return metadata
	}

	geoCtx, cancel := context.WithTimeout(ctx, u.geoTimeout())
	defer cancel()
	located, err := u.Geo.Lookup(geoCtx, ip)
	if err != nil {
		logger.Debug("geo lookup skipped",
			"event", "airdrop_geo_lookup_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "application",
			"ip_address", ip,
			"error", err.Error(),
		)
		return metadata
	}
	located.IPAddress = ip
	return located
}

func (u DisburseUseCase) geoTimeout() time.Duration {
	if u.GeoTimeout <= 0 {
		return defaultGeoTimeout
	}
	return u.GeoTimeout
}

func (u DisburseUseCase) flowTimeout() time.Duration {
	if u.FlowTimeout <= 0 {
		return defaultFlowTimeout
	}
	return u.FlowTimeout
}

func (u DisburseUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
