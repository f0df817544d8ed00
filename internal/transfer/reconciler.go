package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/ledger"
	"github.com/custopay/transfer-relay/internal/model"
	"github.com/custopay/transfer-relay/internal/store"
)

// Reconciler is the background job that keeps the ledger honest: it fails
// the pending records of lapsed envelopes, and re-polls processing records
// the tracker gave up on. It consumes the same transition contract as the
// online flow.
type Reconciler struct {
	repo       store.Repository
	ledger     *ledger.Service
	chain      ChainClient
	envelopes  *EnvelopeRegistry
	interval   time.Duration
	staleAge   time.Duration
	pendingAge time.Duration
	logger     *zap.Logger
}

// NewReconciler creates a reconciliation sweep. staleAge bounds how long a
// processing record may go without an update before re-polling; pendingAge
// (at least the envelope TTL) bounds how long a pending record may wait for
// a completion that is no longer possible.
func NewReconciler(repo store.Repository, ledgerSvc *ledger.Service, chain ChainClient, envelopes *EnvelopeRegistry, interval, staleAge, pendingAge time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:       repo,
		ledger:     ledgerSvc,
		chain:      chain,
		envelopes:  envelopes,
		interval:   interval,
		staleAge:   staleAge,
		pendingAge: pendingAge,
		logger:     logger.Named("reconciler"),
	}
}

// Run loops until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	now := time.Now().UTC()

	// Lapsed envelopes: the client never came back with a signature, so the
	// pending ledger record resolves to failed with reason "expired".
	for _, lapsed := range r.envelopes.SweepExpired(now) {
		_, err := r.ledger.Transition(ctx, lapsed.TransactionID, lapsed.OwnerID, model.StatusFailed, model.StatusEvidence{
			Reason: "expired",
		})
		if err != nil && !errors.Is(err, model.ErrAlreadyInState) {
			r.logger.Warn("could not fail lapsed envelope record",
				zap.String("transaction_id", lapsed.TransactionID.String()),
				zap.Error(err),
			)
		}
	}

	// Abandoned pending records: the envelope is gone - consumed by a
	// completion that could not record its outcome, or lost to a restart -
	// and its TTL has lapsed, so no completion can ever arrive. Resolve
	// terminal rather than leave the record ambiguous.
	pending, err := r.repo.FindPendingOlderThan(ctx, now.Add(-r.pendingAge))
	if err != nil {
		r.logger.Warn("could not list abandoned pending records", zap.Error(err))
	} else {
		for i := range pending {
			if r.envelopes.Has(pending[i].ID) {
				continue
			}
			r.transition(ctx, &pending[i], model.StatusFailed, model.StatusEvidence{
				Reason: "expired",
			})
		}
	}

	// Stale processing records: the tracker timed out on these. Poll again
	// and apply a verdict once one is provable.
	stale, err := r.repo.FindProcessingOlderThan(ctx, now.Add(-r.staleAge))
	if err != nil {
		r.logger.Warn("could not list stale processing records", zap.Error(err))
		return
	}
	for i := range stale {
		r.reconcileProcessing(ctx, &stale[i])
	}
}

func (r *Reconciler) reconcileProcessing(ctx context.Context, tx *model.LedgerTransaction) {
	evidence, ok := tx.Metadata.StatusUpdates[model.StatusProcessing]
	if !ok || evidence.NetworkSignature == "" {
		r.logger.Warn("processing record has no network signature; cannot reconcile",
			zap.String("transaction_id", tx.ID.String()),
		)
		return
	}
	sig, err := solana.SignatureFromBase58(evidence.NetworkSignature)
	if err != nil {
		r.logger.Warn("processing record has a malformed network signature",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return
	}

	status, err := r.chain.Status(ctx, sig)
	if err != nil {
		// Network still unreachable; try again next sweep.
		return
	}

	switch {
	case status.Found && status.Err != nil:
		r.transition(ctx, tx, model.StatusFailed, model.StatusEvidence{
			NetworkSignature: evidence.NetworkSignature,
			Reason:           "transaction failed on chain",
		})
	case status.Found && status.Finalized:
		result := model.StatusEvidence{
			NetworkSignature: evidence.NetworkSignature,
			BlockHeight:      status.Slot,
		}
		if fee, feeErr := r.chain.TransactionFee(ctx, sig); feeErr == nil {
			result.FeeLamports = fee
		}
		r.transition(ctx, tx, model.StatusCompleted, result)
	case !status.Found:
		// An unknown signature is only a verdict once the replay window has
		// provably closed; until then the transaction may still land.
		if !r.replayWindowClosed(ctx, tx, evidence) {
			return
		}
		r.transition(ctx, tx, model.StatusFailed, model.StatusEvidence{
			NetworkSignature: evidence.NetworkSignature,
			Reason:           "replay_window_lapsed",
		})
	}
}

// maxReplayWindow is the upper bound of blockhash validity in network time,
// used only for records that predate the recorded block-height bound.
const maxReplayWindow = 2 * time.Minute

func (r *Reconciler) replayWindowClosed(ctx context.Context, tx *model.LedgerTransaction, evidence model.StatusEvidence) bool {
	if evidence.LastValidBlockHeight > 0 {
		height, err := r.chain.CurrentBlockHeight(ctx)
		if err != nil {
			// Can't prove anything; try again next sweep.
			return false
		}
		return height > evidence.LastValidBlockHeight
	}
	return time.Since(tx.UpdatedAt) >= maxReplayWindow
}

func (r *Reconciler) transition(ctx context.Context, tx *model.LedgerTransaction, status model.Status, evidence model.StatusEvidence) {
	if _, err := r.ledger.Transition(ctx, tx.ID, tx.SenderID, status, evidence); err != nil && !errors.Is(err, model.ErrAlreadyInState) {
		r.logger.Warn("reconciliation transition failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("to", string(status)),
			zap.Error(err),
		)
	}
}
