package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the ledger table if it does not exist yet. Idempotent;
// safe to run on every startup.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			id UUID PRIMARY KEY,
			reference TEXT NOT NULL UNIQUE,
			sender_id TEXT NOT NULL,
			recipient_id TEXT,
			type TEXT NOT NULL,
			amount TEXT NOT NULL,
			asset_symbol TEXT NOT NULL,
			fee_lamports BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_transactions_sender ON ledger_transactions (sender_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_transactions_status_updated ON ledger_transactions (status, updated_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return nil
}
