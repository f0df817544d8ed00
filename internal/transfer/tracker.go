package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/ledger"
	"github.com/custopay/transfer-relay/internal/model"
)

const (
	pollInitialInterval = 1 * time.Second
	pollMaxInterval     = 8 * time.Second
)

// Tracker polls the network for finality of a broadcast transaction with
// bounded retries and backoff, then records the verdict in the ledger.
type Tracker struct {
	chain   ChainClient
	ledger  *ledger.Service
	timeout time.Duration
	logger  *zap.Logger
}

// NewTracker creates a confirmation tracker.
func NewTracker(chain ChainClient, ledgerSvc *ledger.Service, timeout time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		chain:   chain,
		ledger:  ledgerSvc,
		timeout: timeout,
		logger:  logger.Named("tracker"),
	}
}

// AwaitFinality polls until the transaction finalizes, fails on chain, or
// the timeout lapses. The interval doubles from 1s and caps at 8s.
func (t *Tracker) AwaitFinality(ctx context.Context, sig solana.Signature) model.FinalityResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	interval := pollInitialInterval
	for {
		status, err := t.chain.Status(ctx, sig)
		if err != nil {
			// Transient poll failure: keep polling until the deadline.
			t.logger.Warn("signature status poll failed", zap.Error(err))
		} else if status.Found {
			if status.Err != nil {
				return model.FinalityResult{
					Outcome: model.FinalityFailed,
					Reason:  fmt.Sprintf("transaction failed on chain: %v", status.Err),
				}
			}
			if status.Finalized {
				result := model.FinalityResult{
					Outcome:     model.FinalityFinalized,
					BlockHeight: status.Slot,
				}
				if fee, feeErr := t.chain.TransactionFee(ctx, sig); feeErr == nil {
					result.FeeLamports = fee
				}
				return result
			}
		}

		select {
		case <-ctx.Done():
			return model.FinalityResult{Outcome: model.FinalityTimeout}
		case <-time.After(interval):
		}
		if interval < pollMaxInterval {
			interval *= 2
		}
	}
}

// Track awaits finality and applies the verdict to the ledger. On timeout
// the record is deliberately left in processing - not assumed failed - for
// the reconciliation sweep to converge later.
func (t *Tracker) Track(ctx context.Context, txID uuid.UUID, ownerID string, sig solana.Signature) {
	result := t.AwaitFinality(ctx, sig)

	switch result.Outcome {
	case model.FinalityFinalized:
		t.transition(ctx, txID, ownerID, model.StatusCompleted, model.StatusEvidence{
			NetworkSignature: sig.String(),
			BlockHeight:      result.BlockHeight,
			FeeLamports:      result.FeeLamports,
		})
	case model.FinalityFailed:
		t.transition(ctx, txID, ownerID, model.StatusFailed, model.StatusEvidence{
			NetworkSignature: sig.String(),
			Reason:           result.Reason,
		})
	case model.FinalityTimeout:
		t.logger.Warn("confirmation timed out; leaving record in processing",
			zap.String("transaction_id", txID.String()),
			zap.String("signature", sig.String()),
		)
	}
}

func (t *Tracker) transition(ctx context.Context, txID uuid.UUID, ownerID string, status model.Status, evidence model.StatusEvidence) {
	if _, err := t.ledger.Transition(ctx, txID, ownerID, status, evidence); err != nil {
		if errors.Is(err, model.ErrAlreadyInState) {
			// A racing confirmation already applied this verdict.
			return
		}
		t.logger.Error("failed to apply confirmation verdict",
			zap.String("transaction_id", txID.String()),
			zap.String("to", string(status)),
			zap.Error(err),
		)
	}
}
