package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/model"
	"github.com/custopay/transfer-relay/internal/notify"
	"github.com/custopay/transfer-relay/internal/store"
)

// Service owns the ledger transaction lifecycle: creation in pending,
// forward-only transitions with append-only evidence, and notification
// dispatch on terminal states.
type Service struct {
	repo       store.Repository
	dispatcher notify.Dispatcher
	logger     *zap.Logger
}

// NewService creates a ledger service.
func NewService(repo store.Repository, dispatcher notify.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger.Named("ledger"),
	}
}

// CreateParams carries the immutable fields of a new ledger record.
type CreateParams struct {
	TransactionID uuid.UUID
	SenderID      string
	RecipientID   string
	Amount        string
	AssetSymbol   string
}

// Create inserts a new record in pending with its creation evidence seeded
// under metadata.status_updates.pending.
func (s *Service) Create(ctx context.Context, params CreateParams) (*model.LedgerTransaction, error) {
	now := time.Now().UTC()
	tx := &model.LedgerTransaction{
		ID:          params.TransactionID,
		Reference:   NewReference(model.TransactionTypeTransfer),
		SenderID:    params.SenderID,
		RecipientID: params.RecipientID,
		Type:        model.TransactionTypeTransfer,
		Amount:      params.Amount,
		AssetSymbol: params.AssetSymbol,
		Status:      model.StatusPending,
		Metadata:    model.NewMetadata(model.StatusPending, model.StatusEvidence{Timestamp: now}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create ledger record: %w", err)
	}
	s.logger.Info("ledger record created",
		zap.String("id", tx.ID.String()),
		zap.String("reference", tx.Reference),
	)
	return tx, nil
}

// Transition moves a transaction to newStatus. It enforces ownership, the
// allowed-transition table, and idempotent evidence writes: a repeated
// transition to the same status is rejected with ErrAlreadyInState so audit
// evidence is never overwritten. Terminal transitions dispatch a
// notification; dispatch failure never rolls back the transition.
func (s *Service) Transition(ctx context.Context, txID uuid.UUID, ownerID string, newStatus model.Status, evidence model.StatusEvidence) (*model.LedgerTransaction, error) {
	current, err := s.repo.FindTransactionByID(ctx, txID)
	if err != nil {
		return nil, err
	}

	// Ownership check comes first: a mismatched owner always fails,
	// regardless of whether the transition itself would be valid.
	if current.SenderID != ownerID {
		return nil, model.ErrOwnershipMismatch
	}

	if current.Status == newStatus || current.Metadata.Has(newStatus) {
		s.logger.Warn("repeated transition rejected",
			zap.String("id", txID.String()),
			zap.String("status", string(newStatus)),
		)
		return nil, model.ErrAlreadyInState
	}

	if !model.CanTransition(current.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current.Status, newStatus)
	}

	if evidence.Timestamp.IsZero() {
		evidence.Timestamp = time.Now().UTC()
	}
	var completedAt *time.Time
	if newStatus == model.StatusCompleted {
		completedAt = &evidence.Timestamp
	}

	updated, err := s.repo.TransitionStatus(ctx, txID, ownerID, current.Status, newStatus, evidence, completedAt)
	if err != nil {
		if errors.Is(err, model.ErrStatusConflict) {
			// A racing transition won. Re-read to tell "someone already
			// applied this exact transition" apart from a genuine conflict.
			latest, readErr := s.repo.FindTransactionByID(ctx, txID)
			if readErr == nil && latest.Metadata.Has(newStatus) {
				return nil, model.ErrAlreadyInState
			}
		}
		return nil, err
	}

	s.logger.Info("ledger transition applied",
		zap.String("id", txID.String()),
		zap.String("from", string(current.Status)),
		zap.String("to", string(newStatus)),
	)

	if updated.Status.Terminal() && updated.Status != model.StatusCancelled {
		s.notifyTerminal(ctx, updated, evidence)
	}
	return updated, nil
}

// Get fetches one record with the ownership check applied.
func (s *Service) Get(ctx context.Context, txID uuid.UUID, ownerID string) (*model.LedgerTransaction, error) {
	tx, err := s.repo.FindTransactionByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.SenderID != ownerID {
		return nil, model.ErrOwnershipMismatch
	}
	return tx, nil
}

// List returns an owner's records, newest first.
func (s *Service) List(ctx context.Context, ownerID string, req model.ListRequest) ([]model.LedgerTransaction, error) {
	return s.repo.FindTransactionsByOwner(ctx, ownerID, req)
}

func (s *Service) notifyTerminal(ctx context.Context, tx *model.LedgerTransaction, evidence model.StatusEvidence) {
	outcome := notify.OutcomeSuccess
	if tx.Status == model.StatusFailed {
		outcome = notify.OutcomeFailure
	}
	s.dispatcher.Notify(ctx, tx.SenderID, model.Summary{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Amount:        tx.Amount,
		AssetSymbol:   tx.AssetSymbol,
		Status:        tx.Status,
		Reason:        evidence.Reason,
	}, outcome)
}
