package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custopay/transfer-relay/internal/model"
)

// PostgresRepository implements Repository on top of a pgx connection pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL-backed repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transactionColumns = `id, reference, sender_id, recipient_id, type, amount, asset_symbol, fee_lamports, status, metadata, created_at, updated_at, completed_at`

// CreateTransaction inserts a new ledger row in its initial status.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *model.LedgerTransaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_transactions (id, reference, sender_id, recipient_id, type, amount, asset_symbol, fee_lamports, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`

	_, err = r.db.Exec(ctx, query,
		tx.ID, tx.Reference, tx.SenderID, nullable(tx.RecipientID), tx.Type,
		tx.Amount, tx.AssetSymbol, tx.FeeLamports, tx.Status, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger transaction: %w", err)
	}
	return nil
}

// FindTransactionByID fetches one ledger row by primary key.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*model.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE id = $1`
	row := r.db.QueryRow(ctx, query, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find ledger transaction: %w", err)
	}
	return tx, nil
}

// FindTransactionsByOwner lists an owner's ledger rows, newest first, with
// optional status filtering.
func (r *PostgresRepository) FindTransactionsByOwner(ctx context.Context, ownerID string, req model.ListRequest) ([]model.LedgerTransaction, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE sender_id = $1`
	args := []interface{}{ownerID}
	if req.Status != nil {
		query += ` AND status = $2`
		args = append(args, *req.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}
	defer rows.Close()

	var result []model.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}

// TransitionStatus performs the row-level conditional update. The WHERE
// clause carries the ownership check, the expected current status, and the
// append-only guard on metadata.status_updates, so two racing confirmations
// cannot both apply and evidence is never overwritten.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, id uuid.UUID, ownerID string, from, to model.Status, evidence model.StatusEvidence, completedAt *time.Time) (*model.LedgerTransaction, error) {
	evidenceJSON, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence: %w", err)
	}

	query := `
		UPDATE ledger_transactions
		SET status = $1,
		    metadata = jsonb_set(metadata, ARRAY['status_updates', $1::text], $2::jsonb, true),
		    completed_at = COALESCE($3, completed_at),
		    updated_at = NOW()
		WHERE id = $4
		  AND sender_id = $5
		  AND status = $6
		  AND NOT (metadata->'status_updates' ? $1::text)
		RETURNING ` + transactionColumns

	row := r.db.QueryRow(ctx, query, to, evidenceJSON, completedAt, id, ownerID, from)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrStatusConflict
		}
		return nil, fmt.Errorf("failed to transition ledger transaction: %w", err)
	}
	return tx, nil
}

// FindProcessingOlderThan returns processing rows whose last update is
// before cutoff, for the reconciliation sweep.
func (r *PostgresRepository) FindProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]model.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE status = $1 AND updated_at < $2 ORDER BY updated_at ASC LIMIT 100`
	rows, err := r.db.Query(ctx, query, model.StatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing transactions: %w", err)
	}
	defer rows.Close()

	var result []model.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}

// FindPendingOlderThan returns pending rows created before cutoff, for the
// reconciliation sweep over abandoned records.
func (r *PostgresRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.LedgerTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT 100`
	rows, err := r.db.Query(ctx, query, model.StatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	var result []model.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger transaction: %w", err)
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}

func scanTransaction(row pgx.Row) (*model.LedgerTransaction, error) {
	var tx model.LedgerTransaction
	var recipientID *string
	var metadata []byte

	err := row.Scan(
		&tx.ID, &tx.Reference, &tx.SenderID, &recipientID, &tx.Type,
		&tx.Amount, &tx.AssetSymbol, &tx.FeeLamports, &tx.Status, &metadata,
		&tx.CreatedAt, &tx.UpdatedAt, &tx.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if recipientID != nil {
		tx.RecipientID = *recipientID
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if tx.Metadata.StatusUpdates == nil {
		tx.Metadata.StatusUpdates = map[model.Status]model.StatusEvidence{}
	}
	return &tx, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
