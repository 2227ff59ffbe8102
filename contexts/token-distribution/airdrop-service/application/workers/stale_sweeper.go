package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	application "faucet/contexts/token-distribution/airdrop-service/application"
	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

// StaleReservationSweeper closes reservations left behind by a crashed
// process. Reserved rows are failed as abandoned; a lost Submitted write
// means the transfer may still have been sent, so that reason is never
// reclaimed automatically. Submitted rows may already be finalized, so they
// are only reported.
type StaleReservationSweeper struct {
	Repository  ports.DisbursementRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	StaleAfter  time.Duration
	BatchSize   int
	Logger      *slog.Logger
}

type SweepReport struct {
	Failed   int
	Stuck    int
	Conflict int
}

func (s StaleReservationSweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	cutoff := now.Add(-s.staleAfter())

	var report SweepReport
	reserved, err := s.Repository.ListStale(ctx, entities.DisbursementStatusReserved, cutoff, s.batchSize())
	if err != nil {
		logger.Error("stale reservation listing failed",
			"event", "airdrop_sweep_list_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return report, err
	}
	for _, record := range reserved {
		eventID, err := s.IDGenerator.NewID(ctx)
		if err != nil {
			return report, err
		}
		err = s.Repository.Commit(ctx, ports.CommitRequest{
			Recipient: record.Recipient,
			Outcome:   entities.FailedOutcome(application.ReasonReservationAbandoned, "", now),
			EventID:   eventID,
		})
		switch {
		case err == nil:
			report.Failed++
		case errors.Is(err, domainerrors.ErrAlreadyTerminal), errors.Is(err, domainerrors.ErrDisbursementNotFound):
			// The owning request finished between listing and commit.
			report.Conflict++
		default:
			logger.Error("stale reservation commit failed",
				"event", "airdrop_sweep_commit_failed",
				"module", "token-distribution/airdrop-service",
				"layer", "worker",
				"recipient", record.Recipient,
				"error", err.Error(),
			)
			return report, err
		}
	}

	submitted, err := s.Repository.ListStale(ctx, entities.DisbursementStatusSubmitted, cutoff, s.batchSize())
	if err != nil {
		return report, err
	}
	for _, record := range submitted {
		report.Stuck++
		logger.Warn("submitted disbursement awaiting reconciliation",
			"event", "airdrop_sweep_submission_stuck",
			"module", "token-distribution/airdrop-service",
			"layer", "worker",
			"recipient", record.Recipient,
			"tx_hash", record.TxHash,
			"updated_at", record.UpdatedAt.Format(time.RFC3339),
		)
	}

	if report.Failed > 0 || report.Stuck > 0 {
		logger.Info("stale reservation sweep completed",
			"event", "airdrop_sweep_completed",
			"module", "token-distribution/airdrop-service",
			"layer", "worker",
			"failed_count", report.Failed,
			"stuck_count", report.Stuck,
			"conflict_count", report.Conflict,
		)
	}
	return report, nil
}

func (s StaleReservationSweeper) staleAfter() time.Duration {
	if s.StaleAfter <= 0 {
		return 10 * time.Minute
	}
	return s.StaleAfter
}

func (s StaleReservationSweeper) batchSize() int {
	if s.BatchSize <= 0 {
		return 100
	}
	return s.BatchSize
}
