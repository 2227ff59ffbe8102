package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"
	"faucet/internal/shared/outbox"

	"github.com/google/uuid"
)

// Store is the in-process Ledger Store. A single mutex makes Reserve a
// true check-and-insert, matching the unique key of the postgres table.
type Store struct {
	mu sync.RWMutex

	records     map[string]entities.Disbursement
	outbox      map[string]outbox.Message
	unavailable bool
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]entities.Disbursement),
		outbox:  make(map[string]outbox.Message),
	}
}

// SetUnavailable makes every store call fail with ErrStoreUnavailable.
func (s *Store) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = unavailable
}

func (s *Store) Reserve(_ context.Context, req ports.ReserveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return domainerrors.ErrStoreUnavailable
	}

	key := strings.TrimSpace(req.Recipient)
	if existing, ok := s.records[key]; ok {
		if !req.ReclaimFailed || !existing.Reclaimable() {
			return domainerrors.ErrDuplicatedAirdrop
		}
	}
	record, err := entities.NewReservation(key, req.Metadata, req.Now)
	if err != nil {
		return err
	}
	s.records[key] = record
	return nil
}

func (s *Store) Release(_ context.Context, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return domainerrors.ErrStoreUnavailable
	}

	key := strings.TrimSpace(recipient)
	record, ok := s.records[key]
	if !ok {
		return domainerrors.ErrDisbursementNotFound
	}
	if record.Status != entities.DisbursementStatusReserved {
		return domainerrors.ErrInvalidTransition
	}
	delete(s.records, key)
	return nil
}

func (s *Store) MarkSubmitted(_ context.Context, recipient string, txHash string, nonce uint64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return domainerrors.ErrStoreUnavailable
	}

	key := strings.TrimSpace(recipient)
	record, ok := s.records[key]
	if !ok {
		return domainerrors.ErrDisbursementNotFound
	}
	next, err := record.Submit(txHash, nonce, now)
	if err != nil {
		return err
	}
	s.records[key] = next
	return nil
}

func (s *Store) Commit(_ context.Context, req ports.CommitRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return domainerrors.ErrStoreUnavailable
	}

	key := strings.TrimSpace(req.Recipient)
	record, ok := s.records[key]
	if !ok {
		return domainerrors.ErrDisbursementNotFound
	}
	next, err := record.Apply(req.Outcome)
	if err != nil {
		return err
	}

	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		eventID = uuid.NewString()
	}
	envelope, err := ports.NewOutcomeEnvelope(ports.CommitRequest{
		Recipient: key,
		Outcome:   req.Outcome,
		EventID:   eventID,
	})
	if err != nil {
		return err
	}
	message, err := outbox.NewMessage(envelope)
	if err != nil {
		return err
	}
	if _, exists := s.outbox[message.ID]; exists {
		return fmt.Errorf("outbox event %s already exists", message.ID)
	}

	s.records[key] = next
	s.outbox[message.ID] = message
	return nil
}

func (s *Store) Lookup(_ context.Context, recipient string) (entities.Disbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return entities.Disbursement{}, domainerrors.ErrStoreUnavailable
	}
	record, ok := s.records[strings.TrimSpace(recipient)]
	if !ok {
		return entities.Disbursement{}, domainerrors.ErrDisbursementNotFound
	}
	return record, nil
}

func (s *Store) ListStale(
	_ context.Context,
	status entities.DisbursementStatus,
	before time.Time,
	limit int,
) ([]entities.Disbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return nil, domainerrors.ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 100
	}

	items := make([]entities.Disbursement, 0)
	for _, record := range s.records {
		if record.Status == status && record.UpdatedAt.Before(before) {
			items = append(items, record)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.Before(items[j].UpdatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) Reopen(_ context.Context, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return domainerrors.ErrStoreUnavailable
	}
	key := strings.TrimSpace(recipient)
	record, ok := s.records[key]
	if !ok {
		return domainerrors.ErrDisbursementNotFound
	}
	if record.Status != entities.DisbursementStatusFailed {
		return domainerrors.ErrNotReopenable
	}
	delete(s.records, key)
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return nil, domainerrors.ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, message := range s.outbox {
		if message.Status != outbox.StatusPending {
			continue
		}
		items = append(items, ports.OutboxMessage{
			OutboxID:     message.ID,
			EventType:    message.EventType,
			PartitionKey: message.PartitionKey,
			Payload:      append([]byte(nil), message.Payload...),
			CreatedAt:    message.CreatedAt,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrDisbursementNotFound
	}
	message.Status = outbox.StatusSent
	s.outbox[message.ID] = message
	return nil
}

// Count returns the number of records in the given status.
func (s *Store) Count(status entities.DisbursementStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, record := range s.records {
		if record.Status == status {
			count++
		}
	}
	return count
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.DisbursementRepository = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
var _ ports.Clock = (*Store)(nil)
var _ ports.IDGenerator = (*Store)(nil)
