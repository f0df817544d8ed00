package model

import "time"

// PrepareRequest is the body for POST /transfers/prepare.
type PrepareRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	AssetID   string `json:"assetId"`
}

// PrepareResponse returns the partially signed envelope to the client.
type PrepareResponse struct {
	Envelope      *TransactionEnvelope `json:"envelope"`
	TransactionID string               `json:"transactionId"`
	ExpiresAt     time.Time            `json:"expiresAt"`
}

// CompleteRequest is the body for POST /transfers/complete. SenderSignature
// is the base58-encoded ed25519 signature produced on the client's device.
type CompleteRequest struct {
	EnvelopeID      string `json:"envelopeId"`
	SenderSignature string `json:"senderSignature"`
}

// ListRequest carries the query filters for GET /transfers.
type ListRequest struct {
	Status *Status
	Limit  int
}
