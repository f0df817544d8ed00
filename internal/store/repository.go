package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/custopay/transfer-relay/internal/model"
)

// Repository is the contract for ledger persistence. Ownership is enforced
// here, at the storage boundary: every mutation is keyed on the sender id
// that created the row, not just the primary key.
type Repository interface {
	CreateTransaction(ctx context.Context, tx *model.LedgerTransaction) error

	FindTransactionByID(ctx context.Context, id uuid.UUID) (*model.LedgerTransaction, error)

	FindTransactionsByOwner(ctx context.Context, ownerID string, req model.ListRequest) ([]model.LedgerTransaction, error)

	// TransitionStatus is the conditional-update primitive: it moves the row
	// from exactly `from` to `to`, appends evidence under
	// metadata.status_updates[to] (only if that key is absent), stamps
	// completedAt when provided, and matches on (id, ownerID, from). When no
	// row matches it returns model.ErrStatusConflict so the caller can
	// distinguish a lost race from success. Never overwrites evidence.
	TransitionStatus(ctx context.Context, id uuid.UUID, ownerID string, from, to model.Status, evidence model.StatusEvidence, completedAt *time.Time) (*model.LedgerTransaction, error)

	// FindProcessingOlderThan feeds the background reconciliation sweep.
	FindProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]model.LedgerTransaction, error)

	// FindPendingOlderThan returns pending rows created before cutoff, for
	// the sweep that resolves abandoned records whose envelope is gone.
	FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]model.LedgerTransaction, error)
}
