package postgresadapter

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS airdrops (
		recipient      TEXT PRIMARY KEY,
		status         TEXT NOT NULL CHECK (status IN ('reserved', 'submitted', 'confirmed', 'failed')),
		amount         TEXT,
		tx_hash        TEXT NOT NULL DEFAULT '',
		block_hash     TEXT NOT NULL DEFAULT '',
		nonce          BIGINT,
		failure_reason TEXT NOT NULL DEFAULT '',
		ip_address     TEXT NOT NULL DEFAULT '',
		country        TEXT NOT NULL DEFAULT '',
		country_code   TEXT NOT NULL DEFAULT '',
		region         TEXT NOT NULL DEFAULT '',
		region_name    TEXT NOT NULL DEFAULT '',
		city           TEXT NOT NULL DEFAULT '',
		zip            TEXT NOT NULL DEFAULT '',
		latitude       DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
		timezone       TEXT NOT NULL DEFAULT '',
		isp            TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS airdrops_status_updated_at_idx ON airdrops (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS airdrop_outbox (
		outbox_id     TEXT PRIMARY KEY,
		event_type    TEXT NOT NULL,
		partition_key TEXT NOT NULL,
		payload       BYTEA NOT NULL,
		status        TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		sent_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS airdrop_outbox_pending_idx ON airdrop_outbox (status, created_at)`,
}

// EnsureSchema creates the ledger tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *gorm.DB) error {
	for _, statement := range schemaStatements {
		if err := db.WithContext(ctx).Exec(statement).Error; err != nil {
			return fmt.Errorf("apply airdrop schema: %w", err)
		}
	}
	return nil
}
