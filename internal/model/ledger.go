package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a ledger transaction. Transitions only
// move forward: pending -> processing -> {completed|failed}; cancelled is
// reachable from pending only. Terminal states never transition again.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// allowedTransitions is the full transition table.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransactionType distinguishes ledger record categories.
type TransactionType string

const (
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// StatusEvidence records when and why a status transition happened. Written
// once per status and never overwritten.
type StatusEvidence struct {
	Timestamp        time.Time `json:"timestamp"`
	NetworkSignature string    `json:"network_signature,omitempty"`
	BlockHeight      uint64    `json:"block_height,omitempty"`
	// LastValidBlockHeight bounds the replay window of the broadcast
	// transaction; past it the signature can never land.
	LastValidBlockHeight uint64 `json:"last_valid_block_height,omitempty"`
	FeeLamports          uint64 `json:"fee_lamports,omitempty"`
	Reason               string `json:"reason,omitempty"`
}

// Metadata is the append-only evidence map attached to a ledger transaction.
type Metadata struct {
	StatusUpdates map[Status]StatusEvidence `json:"status_updates"`
}

// NewMetadata returns metadata seeded with evidence for the initial status.
func NewMetadata(initial Status, evidence StatusEvidence) Metadata {
	return Metadata{StatusUpdates: map[Status]StatusEvidence{initial: evidence}}
}

// Has reports whether evidence for status was already recorded.
func (m Metadata) Has(status Status) bool {
	_, ok := m.StatusUpdates[status]
	return ok
}

// LedgerTransaction is the durable audit record for one transfer. Amount,
// asset, type, reference and the party ids are immutable after creation;
// only status, completedAt and metadata may mutate.
type LedgerTransaction struct {
	ID          uuid.UUID       `json:"id"`
	Reference   string          `json:"reference"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"recipient_id,omitempty"`
	Type        TransactionType `json:"type"`
	Amount      string          `json:"amount"`
	AssetSymbol string          `json:"asset_symbol"`
	FeeLamports uint64          `json:"fee_lamports"`
	Status      Status          `json:"status"`
	Metadata    Metadata        `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Summary is the compact view handed to the notification dispatcher.
type Summary struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Reference     string    `json:"reference"`
	Amount        string    `json:"amount"`
	AssetSymbol   string    `json:"asset_symbol"`
	Status        Status    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
}
