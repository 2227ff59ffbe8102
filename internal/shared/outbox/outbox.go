package outbox

import (
	"encoding/json"
	"time"

	"faucet/internal/shared/events"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Message is an outbox row persisted inside the same DB transaction as the
// state change it announces. The worker relay publishes pending rows.
type Message struct {
	ID           string
	EventType    string
	PartitionKey string
	Payload      []byte
	Status       string
	CreatedAt    time.Time
}

func NewMessage(envelope events.Envelope) (Message, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:           envelope.EventID,
		EventType:    envelope.EventType,
		PartitionKey: envelope.PartitionKey,
		Payload:      payload,
		Status:       StatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}, nil
}
