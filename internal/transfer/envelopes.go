package transfer

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/custopay/transfer-relay/internal/model"
)

// envelopeEntry holds an issued envelope together with the context needed to
// complete it: who asked for it and which key must still sign.
type envelopeEntry struct {
	envelope     *model.TransactionEnvelope
	ownerID      string
	senderPubkey solana.PublicKey
}

// ExpiredEnvelope identifies a ledger record whose envelope lapsed unused.
type ExpiredEnvelope struct {
	TransactionID uuid.UUID
	OwnerID       string
}

// EnvelopeRegistry owns issued envelopes between prepare and complete. An
// envelope is consumed exactly once, under the registry mutex, so a second
// completion attempt can never reach the broadcast step.
type EnvelopeRegistry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*envelopeEntry
}

// NewEnvelopeRegistry creates an empty registry.
func NewEnvelopeRegistry() *EnvelopeRegistry {
	return &EnvelopeRegistry{entries: make(map[uuid.UUID]*envelopeEntry)}
}

// Put registers a freshly issued envelope.
func (r *EnvelopeRegistry) Put(envelope *model.TransactionEnvelope, ownerID string, senderPubkey solana.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[envelope.TransactionID] = &envelopeEntry{
		envelope:     envelope,
		ownerID:      ownerID,
		senderPubkey: senderPubkey,
	}
}

// Consume atomically removes and returns the envelope. ok=false means the
// id is unknown or was already consumed. expired=true means the envelope was
// present but its replay window lapsed; the entry is still returned so the
// caller can fail the associated ledger record.
func (r *EnvelopeRegistry) Consume(id uuid.UUID, now time.Time) (entry *envelopeEntry, expired bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok = r.entries[id]
	if !ok {
		return nil, false, false
	}
	delete(r.entries, id)
	return entry, entry.envelope.Expired(now), true
}

// SweepExpired drops every lapsed envelope and reports the ledger records
// that must be failed with reason "expired".
func (r *EnvelopeRegistry) SweepExpired(now time.Time) []ExpiredEnvelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lapsed []ExpiredEnvelope
	for id, entry := range r.entries {
		if entry.envelope.Expired(now) {
			delete(r.entries, id)
			lapsed = append(lapsed, ExpiredEnvelope{TransactionID: id, OwnerID: entry.ownerID})
		}
	}
	return lapsed
}

// Has reports whether an envelope for id is still registered.
func (r *EnvelopeRegistry) Has(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len reports how many envelopes are outstanding.
func (r *EnvelopeRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
