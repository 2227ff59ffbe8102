package entities

import (
	"math/big"
	"strings"
	"time"

	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
)

type DisbursementStatus string

const (
	DisbursementStatusReserved  DisbursementStatus = "reserved"
	DisbursementStatusSubmitted DisbursementStatus = "submitted"
	DisbursementStatusConfirmed DisbursementStatus = "confirmed"
	DisbursementStatusFailed    DisbursementStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s DisbursementStatus) Terminal() bool {
	return s == DisbursementStatusConfirmed || s == DisbursementStatusFailed
}

// Failure reasons persisted on Failed records.
const (
	FailureFundingExhausted     = "funding_exhausted"
	FailureTransferFailed       = "transfer_failed"
	FailureTransactionDropped   = "transaction_dropped"
	FailureFinalityTimeout      = "finality_timeout"
	FailureSubmissionRejected   = "submission_rejected"
	FailureSigningFailed        = "signing_failed"
	FailureChainUnavailable     = "chain_unavailable"
	FailureReservationAbandoned = "reservation_abandoned"
	FailureInternal             = "internal_error"
)

// ReclaimableFailures are the reasons that prove no funds moved: the node
// refused the transfer, or it was finalized as a failed dispatch. Timeouts,
// drops and lost connections leave the transfer's fate unknown, and an
// abandoned reservation may have lost its Submitted write.
func ReclaimableFailures() []string {
	return []string{
		FailureSubmissionRejected,
		FailureFundingExhausted,
		FailureTransferFailed,
	}
}

// Reclaimable reports whether a retry may re-reserve this record.
func (d Disbursement) Reclaimable() bool {
	if d.Status != DisbursementStatusFailed {
		return false
	}
	for _, reason := range ReclaimableFailures() {
		if d.FailureReason == reason {
			return true
		}
	}
	return false
}

// Metadata is advisory request origin data. It never takes part in
// reservation or commit decisions.
type Metadata struct {
	IPAddress   string
	Country     string
	CountryCode string
	Region      string
	RegionName  string
	City        string
	Zip         string
	Latitude    float64
	Longitude   float64
	Timezone    string
	ISP         string
}

type Disbursement struct {
	Recipient     string
	Status        DisbursementStatus
	Amount        *big.Int
	TxHash        string
	BlockHash     string
	Nonce         *uint64
	FailureReason string
	Metadata      Metadata
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewReservation(recipient string, metadata Metadata, now time.Time) (Disbursement, error) {
	if strings.TrimSpace(recipient) == "" {
		return Disbursement{}, domainerrors.ErrInvalidAddress
	}
	return Disbursement{
		Recipient: recipient,
		Status:    DisbursementStatusReserved,
		Metadata:  metadata,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Outcome is the terminal result committed for a reservation.
type Outcome struct {
	Status        DisbursementStatus
	Amount        *big.Int
	TxHash        string
	BlockHash     string
	FailureReason string
	At            time.Time
}

func ConfirmedOutcome(amount *big.Int, txHash string, blockHash string, at time.Time) Outcome {
	return Outcome{
		Status:    DisbursementStatusConfirmed,
		Amount:    new(big.Int).Set(amount),
		TxHash:    txHash,
		BlockHash: blockHash,
		At:        at.UTC(),
	}
}

func FailedOutcome(reason string, txHash string, at time.Time) Outcome {
	return Outcome{
		Status:        DisbursementStatusFailed,
		TxHash:        txHash,
		FailureReason: reason,
		At:            at.UTC(),
	}
}

// CanTransition encodes Reserved -> Submitted -> {Confirmed | Failed}.
// Reserved may jump straight to a terminal state when the Submitted write
// was lost or the transfer never reached the node.
func CanTransition(from DisbursementStatus, to DisbursementStatus) bool {
	switch from {
	case DisbursementStatusReserved:
		return to == DisbursementStatusSubmitted ||
			to == DisbursementStatusConfirmed ||
			to == DisbursementStatusFailed
	case DisbursementStatusSubmitted:
		return to == DisbursementStatusConfirmed || to == DisbursementStatusFailed
	default:
		return false
	}
}

// Apply returns the record after committing outcome.
func (d Disbursement) Apply(outcome Outcome) (Disbursement, error) {
	if d.Status.Terminal() {
		return Disbursement{}, domainerrors.ErrAlreadyTerminal
	}
	if !outcome.Status.Terminal() || !CanTransition(d.Status, outcome.Status) {
		return Disbursement{}, domainerrors.ErrInvalidTransition
	}

	next := d
	next.Status = outcome.Status
	next.UpdatedAt = outcome.At.UTC()
	if outcome.TxHash != "" {
		next.TxHash = outcome.TxHash
	}
	switch outcome.Status {
	case DisbursementStatusConfirmed:
		if outcome.Amount != nil {
			next.Amount = new(big.Int).Set(outcome.Amount)
		}
		next.BlockHash = outcome.BlockHash
		next.FailureReason = ""
	case DisbursementStatusFailed:
		next.FailureReason = outcome.FailureReason
	}
	return next, nil
}

// Submit moves a reservation to Submitted once the node accepted the transfer.
func (d Disbursement) Submit(txHash string, nonce uint64, at time.Time) (Disbursement, error) {
	if d.Status != DisbursementStatusReserved {
		if d.Status.Terminal() {
			return Disbursement{}, domainerrors.ErrAlreadyTerminal
		}
		return Disbursement{}, domainerrors.ErrInvalidTransition
	}
	next := d
	next.Status = DisbursementStatusSubmitted
	next.TxHash = txHash
	next.Nonce = &nonce
	next.UpdatedAt = at.UTC()
	return next, nil
}
