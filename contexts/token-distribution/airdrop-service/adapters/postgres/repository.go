package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	domainerrors "faucet/contexts/token-distribution/airdrop-service/domain/errors"
	"faucet/contexts/token-distribution/airdrop-service/ports"
	"faucet/internal/shared/outbox"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var liveStatuses = []string{
	string(entities.DisbursementStatusReserved),
	string(entities.DisbursementStatusSubmitted),
}

// Repository is the postgres Ledger Store. The primary key on recipient is
// the reservation primitive; every transition is a conditional UPDATE so a
// terminal row can never be overwritten.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Reserve(ctx context.Context, req ports.ReserveRequest) error {
	key := strings.TrimSpace(req.Recipient)
	record, err := entities.NewReservation(key, req.Metadata, req.Now)
	if err != nil {
		return err
	}

	row := disbursementModelFromEntity(record)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "recipient"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return domainerrors.ErrDuplicatedAirdrop
		}
		return r.storeError("airdrop_repo_reserve_failed", create.Error, "recipient", key)
	}
	if create.RowsAffected > 0 {
		return nil
	}
	if !req.ReclaimFailed {
		return domainerrors.ErrDuplicatedAirdrop
	}

	reclaim := r.db.WithContext(ctx).
		Model(&disbursementModel{}).
		Where("recipient = ? AND status = ? AND failure_reason IN ?",
			key, string(entities.DisbursementStatusFailed), entities.ReclaimableFailures()).
		Updates(reservationColumns(row))
	if reclaim.Error != nil {
		return r.storeError("airdrop_repo_reclaim_failed", reclaim.Error, "recipient", key)
	}
	if reclaim.RowsAffected == 0 {
		return domainerrors.ErrDuplicatedAirdrop
	}
	r.logger.Info("failed disbursement reclaimed",
		"event", "airdrop_repo_failed_reclaimed",
		"module", "token-distribution/airdrop-service",
		"layer", "adapter",
		"recipient", key,
	)
	return nil
}

func (r *Repository) Release(ctx context.Context, recipient string) error {
	key := strings.TrimSpace(recipient)
	result := r.db.WithContext(ctx).
		Where("recipient = ? AND status = ?", key, string(entities.DisbursementStatusReserved)).
		Delete(&disbursementModel{})
	if result.Error != nil {
		return r.storeError("airdrop_repo_release_failed", result.Error, "recipient", key)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return r.explainMiss(ctx, key, domainerrors.ErrInvalidTransition)
}

func (r *Repository) MarkSubmitted(
	ctx context.Context,
	recipient string,
	txHash string,
	nonce uint64,
	now time.Time,
) error {
	key := strings.TrimSpace(recipient)
	storedNonce := int64(nonce)
	result := r.db.WithContext(ctx).
		Model(&disbursementModel{}).
		Where("recipient = ? AND status = ?", key, string(entities.DisbursementStatusReserved)).
		Updates(map[string]any{
			"status":     string(entities.DisbursementStatusSubmitted),
			"tx_hash":    strings.TrimSpace(txHash),
			"nonce":      storedNonce,
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return r.storeError("airdrop_repo_mark_submitted_failed", result.Error,
			"recipient", key,
			"tx_hash", txHash,
		)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return r.explainMiss(ctx, key, domainerrors.ErrInvalidTransition)
}

func (r *Repository) Commit(ctx context.Context, req ports.CommitRequest) error {
	key := strings.TrimSpace(req.Recipient)
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		eventID = uuid.NewString()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row disbursementModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("recipient = ?", key).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrDisbursementNotFound
			}
			return err
		}

		next, err := row.toEntity().Apply(req.Outcome)
		if err != nil {
			return err
		}

		update := tx.Model(&disbursementModel{}).
			Where("recipient = ? AND status IN ?", key, liveStatuses).
			Updates(terminalColumns(next))
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return domainerrors.ErrAlreadyTerminal
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
		return tx.Create(&outboxModel{
			OutboxID:     message.ID,
			EventType:    message.EventType,
			PartitionKey: message.PartitionKey,
			Payload:      message.Payload,
			Status:       message.Status,
			CreatedAt:    message.CreatedAt,
		}).Error
	})
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return r.storeError("airdrop_repo_commit_failed", err,
			"recipient", key,
			"status", string(req.Outcome.Status),
			"tx_hash", req.Outcome.TxHash,
		)
	}
	return nil
}

func (r *Repository) Lookup(ctx context.Context, recipient string) (entities.Disbursement, error) {
	key := strings.TrimSpace(recipient)
	var row disbursementModel
	err := r.db.WithContext(ctx).
		Where("recipient = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Disbursement{}, domainerrors.ErrDisbursementNotFound
		}
		return entities.Disbursement{}, r.storeError("airdrop_repo_lookup_failed", err, "recipient", key)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListStale(
	ctx context.Context,
	status entities.DisbursementStatus,
	before time.Time,
	limit int,
) ([]entities.Disbursement, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []disbursementModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(status), before.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.storeError("airdrop_repo_list_stale_failed", err,
			"status", string(status),
			"limit", limit,
		)
	}
	items := make([]entities.Disbursement, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) Reopen(ctx context.Context, recipient string) error {
	key := strings.TrimSpace(recipient)
	result := r.db.WithContext(ctx).
		Where("recipient = ? AND status = ?", key, string(entities.DisbursementStatusFailed)).
		Delete(&disbursementModel{})
	if result.Error != nil {
		return r.storeError("airdrop_repo_reopen_failed", result.Error, "recipient", key)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return r.explainMiss(ctx, key, domainerrors.ErrNotReopenable)
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.storeError("airdrop_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":  outbox.StatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return r.storeError("airdrop_repo_mark_outbox_sent_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrDisbursementNotFound
	}
	return nil
}

// explainMiss turns a conditional write that touched no row into the domain
// error describing why.
func (r *Repository) explainMiss(ctx context.Context, recipient string, wrongState error) error {
	if _, err := r.Lookup(ctx, recipient); err != nil {
		return err
	}
	return wrongState
}

func (r *Repository) storeError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "token-distribution/airdrop-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("airdrop repository operation failed", fields...)
	return fmt.Errorf("%w: %v", domainerrors.ErrStoreUnavailable, err)
}

type disbursementModel struct {
	Recipient     string    `gorm:"column:recipient;primaryKey"`
	Status        string    `gorm:"column:status"`
	Amount        *string   `gorm:"column:amount"`
	TxHash        string    `gorm:"column:tx_hash"`
	BlockHash     string    `gorm:"column:block_hash"`
	Nonce         *int64    `gorm:"column:nonce"`
	FailureReason string    `gorm:"column:failure_reason"`
	IPAddress     string    `gorm:"column:ip_address"`
	Country       string    `gorm:"column:country"`
	CountryCode   string    `gorm:"column:country_code"`
	Region        string    `gorm:"column:region"`
	RegionName    string    `gorm:"column:region_name"`
	City          string    `gorm:"column:city"`
	Zip           string    `gorm:"column:zip"`
	Latitude      float64   `gorm:"column:latitude"`
	Longitude     float64   `gorm:"column:longitude"`
	Timezone      string    `gorm:"column:timezone"`
	ISP           string    `gorm:"column:isp"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (disbursementModel) TableName() string {
	return "airdrops"
}

func disbursementModelFromEntity(record entities.Disbursement) disbursementModel {
	row := disbursementModel{
		Recipient:     record.Recipient,
		Status:        string(record.Status),
		TxHash:        record.TxHash,
		BlockHash:     record.BlockHash,
		FailureReason: record.FailureReason,
		IPAddress:     record.Metadata.IPAddress,
		Country:       record.Metadata.Country,
		CountryCode:   record.Metadata.CountryCode,
		Region:        record.Metadata.Region,
		RegionName:    record.Metadata.RegionName,
		City:          record.Metadata.City,
		Zip:           record.Metadata.Zip,
		Latitude:      record.Metadata.Latitude,
		Longitude:     record.Metadata.Longitude,
		Timezone:      record.Metadata.Timezone,
		ISP:           record.Metadata.ISP,
		CreatedAt:     record.CreatedAt.UTC(),
		UpdatedAt:     record.UpdatedAt.UTC(),
	}
	if record.Amount != nil {
		amount := record.Amount.String()
		row.Amount = &amount
	}
	if record.Nonce != nil {
		nonce := int64(*record.Nonce)
		row.Nonce = &nonce
	}
	return row
}

func (m disbursementModel) toEntity() entities.Disbursement {
	record := entities.Disbursement{
		Recipient:     m.Recipient,
		Status:        entities.DisbursementStatus(m.Status),
		TxHash:        m.TxHash,
		BlockHash:     m.BlockHash,
		FailureReason: m.FailureReason,
		Metadata: entities.Metadata{
			IPAddress:   m.IPAddress,
			Country:     m.Country,
			CountryCode: m.CountryCode,
			Region:      m.Region,
			RegionName:  m.RegionName,
			City:        m.City,
			Zip:         m.Zip,
			Latitude:    m.Latitude,
			Longitude:   m.Longitude,
			Timezone:    m.Timezone,
			ISP:         m.ISP,
		},
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	if m.Amount != nil {
		if amount, ok := new(big.Int).SetString(*m.Amount, 10); ok {
			record.Amount = amount
		}
	}
	if m.Nonce != nil {
		nonce := uint64(*m.Nonce)
		record.Nonce = &nonce
	}
	return record
}

// reservationColumns resets a reclaimed row to a fresh reservation.
func reservationColumns(row disbursementModel) map[string]any {
	return map[string]any{
		"status":         row.Status,
		"amount":         nil,
		"tx_hash":        "",
		"block_hash":     "",
		"nonce":          nil,
		"failure_reason": "",
		"ip_address":     row.IPAddress,
		"country":        row.Country,
		"country_code":   row.CountryCode,
		"region":         row.Region,
		"region_name":    row.RegionName,
		"city":           row.City,
		"zip":            row.Zip,
		"latitude":       row.Latitude,
		"longitude":      row.Longitude,
		"timezone":       row.Timezone,
		"isp":            row.ISP,
		"created_at":     row.CreatedAt,
		"updated_at":     row.UpdatedAt,
	}
}

func terminalColumns(record entities.Disbursement) map[string]any {
	columns := map[string]any{
		"status":         string(record.Status),
		"tx_hash":        record.TxHash,
		"block_hash":     record.BlockHash,
		"failure_reason": record.FailureReason,
		"updated_at":     record.UpdatedAt.UTC(),
	}
	if record.Amount != nil {
		columns["amount"] = record.Amount.String()
	}
	return columns
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "airdrop_outbox"
}

func isDomainError(err error) bool {
	return errors.Is(err, domainerrors.ErrDisbursementNotFound) ||
		errors.Is(err, domainerrors.ErrAlreadyTerminal) ||
		errors.Is(err, domainerrors.ErrInvalidTransition)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.DisbursementRepository = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
