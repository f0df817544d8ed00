package transfer

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/custopay/transfer-relay/internal/model"
)

func registerEnvelope(r *EnvelopeRegistry, ttl time.Duration) uuid.UUID {
	id := uuid.New()
	r.Put(&model.TransactionEnvelope{
		TransactionID: id,
		ExpiresAt:     time.Now().UTC().Add(ttl),
	}, "owner-1", solana.NewWallet().PublicKey())
	return id
}

func TestConsumeRemovesEntry(t *testing.T) {
	r := NewEnvelopeRegistry()
	id := registerEnvelope(r, time.Minute)

	entry, expired, ok := r.Consume(id, time.Now().UTC())
	if !ok || expired {
		t.Fatalf("expected live envelope, got ok=%v expired=%v", ok, expired)
	}
	if entry.ownerID != "owner-1" {
		t.Fatalf("unexpected owner %q", entry.ownerID)
	}

	if _, _, ok := r.Consume(id, time.Now().UTC()); ok {
		t.Fatal("second consume must miss")
	}
}

func TestConsumeReportsExpiry(t *testing.T) {
	r := NewEnvelopeRegistry()
	id := registerEnvelope(r, -time.Second)

	entry, expired, ok := r.Consume(id, time.Now().UTC())
	if !ok || !expired {
		t.Fatalf("expected expired envelope to be returned, got ok=%v expired=%v", ok, expired)
	}
	// The entry still identifies the ledger record so the caller can fail it.
	if entry.envelope.TransactionID != id {
		t.Fatal("expired entry lost its transaction id")
	}
	if r.Len() != 0 {
		t.Fatal("expired consume must still remove the entry")
	}
}

func TestSweepExpired(t *testing.T) {
	r := NewEnvelopeRegistry()
	lapsed := registerEnvelope(r, -time.Second)
	live := registerEnvelope(r, time.Minute)

	swept := r.SweepExpired(time.Now().UTC())
	if len(swept) != 1 || swept[0].TransactionID != lapsed {
		t.Fatalf("expected only the lapsed envelope swept, got %+v", swept)
	}
	if swept[0].OwnerID != "owner-1" {
		t.Fatalf("sweep must report the owner, got %q", swept[0].OwnerID)
	}
	if r.Len() != 1 {
		t.Fatalf("live envelope must survive the sweep, len=%d", r.Len())
	}
	if _, _, ok := r.Consume(live, time.Now().UTC()); !ok {
		t.Fatal("live envelope must still be consumable")
	}
}

func TestConsumeUnknownID(t *testing.T) {
	r := NewEnvelopeRegistry()
	if _, _, ok := r.Consume(uuid.New(), time.Now().UTC()); ok {
		t.Fatal("unknown id must not consume")
	}
}
