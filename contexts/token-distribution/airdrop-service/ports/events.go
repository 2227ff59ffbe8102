package ports

import (
	"encoding/json"

	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
)

const (
	DisbursementConfirmedEventType = "airdrop.disbursement.confirmed"
	DisbursementFailedEventType    = "airdrop.disbursement.failed"

	sourceService = "airdrop-service"
)

type disbursementEventData struct {
	Recipient     string `json:"recipient"`
	Status        string `json:"status"`
	Amount        string `json:"amount,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	BlockHash     string `json:"block_hash,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// NewOutcomeEnvelope builds the outbox event announcing a committed outcome.
func NewOutcomeEnvelope(req CommitRequest) (EventEnvelope, error) {
	data := disbursementEventData{
		Recipient:     req.Recipient,
		Status:        string(req.Outcome.Status),
		TxHash:        req.Outcome.TxHash,
		BlockHash:     req.Outcome.BlockHash,
		FailureReason: req.Outcome.FailureReason,
	}
	if req.Outcome.Amount != nil {
		data.Amount = req.Outcome.Amount.String()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return EventEnvelope{}, err
	}

	eventType := DisbursementFailedEventType
	if req.Outcome.Status == entities.DisbursementStatusConfirmed {
		eventType = DisbursementConfirmedEventType
	}
	return EventEnvelope{
		EventID:          req.EventID,
		EventType:        eventType,
		OccurredAt:       req.Outcome.At.UTC(),
		SourceService:    sourceService,
		SchemaVersion:    1,
		PartitionKeyPath: "recipient",
		PartitionKey:     req.Recipient,
		Data:             raw,
	}, nil
}
