package model

import (
	"time"

	"github.com/google/uuid"
)

// TransferIntent is the immutable input to transfer preparation. Amount is a
// decimal string constrained to the asset's precision; parsing to integer
// units happens once, at build time.
type TransferIntent struct {
	SenderAddress    string
	RecipientAddress string
	Amount           string
	AssetID          string
	RequestedBy      string
}

// TransactionEnvelope is the partially signed transaction handed to the
// client for out-of-band signing. Owned exclusively by the orchestration
// flow; consumed exactly once or discarded on expiry, never persisted beyond
// the ledger record's metadata.
type TransactionEnvelope struct {
	TransactionID            uuid.UUID `json:"transaction_id"`
	SerializedPayload        string    `json:"serialized_payload"` // base64
	ReplayWindowReference    string    `json:"replay_window_reference"`
	LastValidBlockHeight     uint64    `json:"last_valid_block_height"`
	ExpiresAt                time.Time `json:"expires_at"`
	RequiredSignerAddresses  []string  `json:"required_signer_addresses"`
	FeePayerSignaturePresent bool      `json:"fee_payer_signature_present"`
}

// Expired reports whether the envelope's replay window has lapsed at now.
func (e *TransactionEnvelope) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// BalanceSnapshot is an ephemeral per-operation read of an on-chain token
// balance. Never cached across calls.
type BalanceSnapshot struct {
	Address   string
	AssetID   string
	Available string // decimal, asset precision
	Raw       uint64 // integer base units
	Decimals  int
}

// FeePayerStatus reports the fee payer's native balance against the
// configured minimum reserve.
type FeePayerStatus struct {
	Address           string `json:"address"`
	Lamports          uint64 `json:"lamports"`
	ReserveLamports   uint64 `json:"reserve_lamports"`
	SufficientForFees bool   `json:"sufficient_for_fees"`
}

// SubmitResult is returned by completion after a successful broadcast.
type SubmitResult struct {
	NetworkSignature string `json:"network_signature"`
	Status           string `json:"status"` // always "submitted"
}

// FinalityOutcome is the tracker's verdict for one broadcast transaction.
type FinalityOutcome int

const (
	FinalityFinalized FinalityOutcome = iota
	FinalityFailed
	FinalityTimeout
)

// FinalityResult carries the evidence observed at finality or on-chain error.
type FinalityResult struct {
	Outcome     FinalityOutcome
	BlockHeight uint64
	FeeLamports uint64
	Reason      string
}
