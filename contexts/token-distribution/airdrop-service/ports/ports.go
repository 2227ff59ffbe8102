package ports

import (
	"context"
	"math/big"
	"time"

	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	"faucet/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"faucet/internal/shared/events"
)

// ReserveRequest is the atomic claim on a recipient address.
type ReserveRequest struct {
	Recipient string
	Metadata  entities.Metadata
	Now       time.Time
	// ReclaimFailed lets a Failed record whose reason proves no funds moved
	// (entities.ReclaimableFailures) be re-reserved in the same atomic step.
	// Confirmed, Reserved and Submitted records are never reclaimed.
	ReclaimFailed bool
}

// CommitRequest carries the terminal outcome and the outbox event id
// persisted with it.
type CommitRequest struct {
	Recipient string
	Outcome   entities.Outcome
	EventID   string
}

// DisbursementRepository is the Ledger Store. Reserve must be enforced by a
// storage-level uniqueness constraint, never by a read followed by a write.
type DisbursementRepository interface {
	// Reserve returns ErrDuplicatedAirdrop when a record already exists.
	Reserve(ctx context.Context, req ReserveRequest) error
	// Release deletes a Reserved record whose transfer never left the process.
	Release(ctx context.Context, recipient string) error
	MarkSubmitted(ctx context.Context, recipient string, txHash string, nonce uint64, now time.Time) error
	// Commit returns ErrAlreadyTerminal when the record is already terminal.
	Commit(ctx context.Context, req CommitRequest) error
	Lookup(ctx context.Context, recipient string) (entities.Disbursement, error)
	ListStale(ctx context.Context, status entities.DisbursementStatus, before time.Time, limit int) ([]entities.Disbursement, error)
	// Reopen removes a Failed record so the address may request again.
	Reopen(ctx context.Context, recipient string) error
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

type EventEnvelope = events.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// Clock allows deterministic testing of staleness rules.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts outbox event identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// AddressCodec decodes and canonicalises recipient addresses.
type AddressCodec interface {
	Parse(raw string) (valueobjects.Address, error)
}

// GeoLocator annotates a request origin. Failures are advisory only.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (entities.Metadata, error)
}

type TxStatusKind string

const (
	TxStatusFuture          TxStatusKind = "future"
	TxStatusReady           TxStatusKind = "ready"
	TxStatusBroadcast       TxStatusKind = "broadcast"
	TxStatusInBlock         TxStatusKind = "in_block"
	TxStatusRetracted       TxStatusKind = "retracted"
	TxStatusFinalized       TxStatusKind = "finalized"
	TxStatusFinalityTimeout TxStatusKind = "finality_timeout"
	TxStatusUsurped         TxStatusKind = "usurped"
	TxStatusDropped         TxStatusKind = "dropped"
	TxStatusInvalid         TxStatusKind = "invalid"
)

// Abandoned reports a terminal status in which the transaction will never
// be finalized by this submission.
func (k TxStatusKind) Abandoned() bool {
	switch k {
	case TxStatusFinalityTimeout, TxStatusUsurped, TxStatusDropped, TxStatusInvalid:
		return true
	default:
		return false
	}
}

type TxStatus struct {
	Kind      TxStatusKind
	BlockHash string
}

// SubmissionHandle is a live watch on one submitted transfer. Release must
// be called exactly once by whoever ends up owning the handle; extra calls
// are no-ops.
type SubmissionHandle interface {
	TxHash() string
	Nonce() uint64
	Statuses() <-chan TxStatus
	Errors() <-chan error
	Release()
}

type TransferRequest struct {
	Recipient valueobjects.Address
	Amount    *big.Int
	Nonce     uint64
}

type InspectRequest struct {
	BlockHash string
	TxHash    string
	Amount    *big.Int
}

// ExecutionResult describes what a finalized transfer actually did.
type ExecutionResult struct {
	Success          bool
	FundingExhausted bool
	Reason           string
}

// ChainClient is the narrow view of the ledger node used by the submitter
// and the finality listener. Implementations resolve the current connection
// on every call.
type ChainClient interface {
	Ready() error
	NextNonce(ctx context.Context) (uint64, error)
	SubmitTransfer(ctx context.Context, req TransferRequest) (SubmissionHandle, error)
	InspectExecution(ctx context.Context, req InspectRequest) (ExecutionResult, error)
}

type TransferSubmitter interface {
	Submit(ctx context.Context, recipient valueobjects.Address, amount *big.Int) (SubmissionHandle, error)
}

type FinalityOutcome struct {
	TxHash    string
	BlockHash string
}

type FinalityListener interface {
	AwaitOutcome(ctx context.Context, handle SubmissionHandle, amount *big.Int) (FinalityOutcome, error)
}
