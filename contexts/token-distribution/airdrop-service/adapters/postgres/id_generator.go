package postgresadapter

import (
	"context"

	"github.com/google/uuid"
)

// UUIDGenerator creates outbox event identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
