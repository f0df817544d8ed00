package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custopay/transfer-relay/internal/client"
	"github.com/custopay/transfer-relay/internal/ledger"
	"github.com/custopay/transfer-relay/internal/model"
	"github.com/custopay/transfer-relay/internal/notify"
)

// processingRecord seeds a broadcast-stage ledger record for tracker tests.
func processingRecord(t *testing.T, r *rig, sig solana.Signature) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tx, err := r.ledger.Create(ctx, ledger.CreateParams{
		TransactionID: uuid.New(),
		SenderID:      "user-1",
		RecipientID:   r.recipient.PublicKey().String(),
		Amount:        "5",
		AssetSymbol:   "USDC",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := r.ledger.Transition(ctx, tx.ID, "user-1", model.StatusProcessing, model.StatusEvidence{NetworkSignature: sig.String(), LastValidBlockHeight: 100}); err != nil {
		t.Fatalf("transition to processing failed: %v", err)
	}
	return tx.ID
}

func TestTrackFinalized(t *testing.T) {
	r := newRig(t)
	sig := solana.Signature{1, 2, 3}
	txID := processingRecord(t, r, sig)

	r.chain.statuses = []client.SignatureStatus{{Found: true, Finalized: true, Slot: 7701}}
	r.chain.feeLamports = 5000

	r.tracker.Track(context.Background(), txID, "user-1", sig)

	stored, _ := r.repo.FindTransactionByID(context.Background(), txID)
	if stored.Status != model.StatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	evidence := stored.Metadata.StatusUpdates[model.StatusCompleted]
	if evidence.BlockHeight != 7701 || evidence.FeeLamports != 5000 {
		t.Fatalf("expected block height and fee in evidence, got %+v", evidence)
	}
	if stored.CompletedAt == nil {
		t.Fatal("expected completedAt to be stamped")
	}
	if r.dispatcher.calls != 1 || r.dispatcher.outcomes[0] != notify.OutcomeSuccess {
		t.Fatalf("expected one success notification, got %d", r.dispatcher.calls)
	}
}

func TestTrackOnChainFailure(t *testing.T) {
	r := newRig(t)
	sig := solana.Signature{4, 5, 6}
	txID := processingRecord(t, r, sig)

	r.chain.statuses = []client.SignatureStatus{{Found: true, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}}

	r.tracker.Track(context.Background(), txID, "user-1", sig)

	stored, _ := r.repo.FindTransactionByID(context.Background(), txID)
	if stored.Status != model.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.Metadata.StatusUpdates[model.StatusFailed].Reason == "" {
		t.Fatal("expected an on-chain failure reason in evidence")
	}
	if r.dispatcher.calls != 1 || r.dispatcher.outcomes[0] != notify.OutcomeFailure {
		t.Fatalf("expected one failure notification, got %d", r.dispatcher.calls)
	}
}

func TestTrackTimeoutLeavesProcessing(t *testing.T) {
	r := newRig(t)
	sig := solana.Signature{7, 8, 9}
	txID := processingRecord(t, r, sig)

	// Never found within the deadline.
	tracker := NewTracker(r.chain, r.ledger, 50*time.Millisecond, zap.NewNop())
	tracker.Track(context.Background(), txID, "user-1", sig)

	stored, _ := r.repo.FindTransactionByID(context.Background(), txID)
	if stored.Status != model.StatusProcessing {
		t.Fatalf("timeout must leave the record in processing, got %s", stored.Status)
	}
	if r.dispatcher.calls != 0 {
		t.Fatal("timeout must not notify")
	}
}

func TestAwaitFinalityPollsUntilFinalized(t *testing.T) {
	r := newRig(t)
	sig := solana.Signature{9, 9, 9}

	r.chain.statuses = []client.SignatureStatus{
		{Found: false},
		{Found: true, Finalized: false, Slot: 7700},
		{Found: true, Finalized: true, Slot: 7702},
	}

	tracker := NewTracker(r.chain, r.ledger, 30*time.Second, zap.NewNop())
	result := tracker.AwaitFinality(context.Background(), sig)
	if result.Outcome != model.FinalityFinalized {
		t.Fatalf("expected finalized outcome, got %v", result.Outcome)
	}
	if result.BlockHeight != 7702 {
		t.Fatalf("expected slot of the finalized poll, got %d", result.BlockHeight)
	}
	if r.chain.callCount("Status") != 3 {
		t.Fatalf("expected three polls, got %d", r.chain.callCount("Status"))
	}
}
