package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "faucet/contexts/token-distribution/airdrop-service/application"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

const (
	defaultTopic          = "airdrop.disbursements"
	defaultRelayBatchSize = 100
)

var errPartitionMismatch = errors.New("outbox row partition key does not match its event")

// OutboxRelay forwards committed disbursement outcomes to the broker. Rows
// are acknowledged one at a time after a successful publish, so a crash
// between the two re-sends the event; consumers dedupe on event_id.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

type RelayReport struct {
	Sent int
	// Unreadable rows stay pending and are reported on every pass until an
	// operator repairs them. They never block later outcomes.
	Unreadable int
}

// RunOnce relays one batch. A broker or store error ends the pass early and
// leaves the remaining rows for the next tick.
func (r OutboxRelay) RunOnce(ctx context.Context) (RelayReport, error) {
	logger := application.ResolveLogger(r.Logger)
	var report RelayReport

	pending, err := r.Outbox.ListPendingOutbox(ctx, r.batchSize())
	if err != nil {
		logger.Error("outbox list pending failed",
			"event", "airdrop_outbox_list_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return report, err
	}

	for _, message := range pending {
		envelope, err := decodeOutboxEvent(message)
		if err != nil {
			report.Unreadable++
			logger.Error("outbox row unreadable",
				"event", "airdrop_outbox_row_unreadable",
				"module", "token-distribution/airdrop-service",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"partition_key", message.PartitionKey,
				"error", err.Error(),
			)
			continue
		}

		if err := r.Publisher.Publish(ctx, r.topic(), envelope); err != nil {
			logger.Warn("outbox publish failed",
				"event", "airdrop_outbox_publish_failed",
				"module", "token-distribution/airdrop-service",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"event_id", envelope.EventID,
				"recipient", envelope.PartitionKey,
				"error", err.Error(),
			)
			return report, err
		}
		if err := r.Outbox.MarkOutboxSent(ctx, message.OutboxID, r.now()); err != nil {
			logger.Error("outbox mark sent failed",
				"event", "airdrop_outbox_mark_sent_failed",
				"module", "token-distribution/airdrop-service",
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"event_id", envelope.EventID,
				"error", err.Error(),
			)
			return report, err
		}
		report.Sent++
	}

	if report.Sent > 0 || report.Unreadable > 0 {
		logger.Info("outbox relay pass completed",
			"event", "airdrop_outbox_relay_completed",
			"module", "token-distribution/airdrop-service",
			"layer", "worker",
			"sent_count", report.Sent,
			"unreadable_count", report.Unreadable,
		)
	}
	return report, nil
}

// decodeOutboxEvent restores the envelope and checks it still routes to the
// recipient the row was written for.
func decodeOutboxEvent(message ports.OutboxMessage) (ports.EventEnvelope, error) {
	var envelope ports.EventEnvelope
	if err := json.Unmarshal(message.Payload, &envelope); err != nil {
		return ports.EventEnvelope{}, fmt.Errorf("decode payload: %w", err)
	}
	if envelope.EventID == "" {
		return ports.EventEnvelope{}, errors.New("decode payload: missing event id")
	}
	if message.PartitionKey != "" && envelope.PartitionKey != message.PartitionKey {
		return ports.EventEnvelope{}, fmt.Errorf("%w: row %q, event %q",
			errPartitionMismatch, message.PartitionKey, envelope.PartitionKey)
	}
	return envelope, nil
}

func (r OutboxRelay) batchSize() int {
	if r.BatchSize <= 0 {
		return defaultRelayBatchSize
	}
	return r.BatchSize
}

func (r OutboxRelay) topic() string {
	if r.Topic == "" {
		return defaultTopic
	}
	return r.Topic
}

func (r OutboxRelay) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}
