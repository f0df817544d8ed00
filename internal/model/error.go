package model

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and API responses. Every user-visible
// error carries a Kind plus a human-readable reason, never a raw RPC or
// storage error string.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindInsufficientBalance  Kind = "insufficient_balance"
	KindNetworkUnavailable   Kind = "network_unavailable"
	KindEnvelopeExpired      Kind = "envelope_expired"
	KindIncompleteSignatures Kind = "incomplete_signatures"
	KindBroadcastRejected    Kind = "broadcast_rejected"
	KindAlreadyInState       Kind = "already_in_state"
	KindOwnership            Kind = "ownership"
	KindNotFound             Kind = "not_found"
	KindInternal             Kind = "internal"
)

// Validation variants checked by the address validator.
var (
	ErrInvalidAddress     = errors.New("invalid network address")
	ErrSameAddress        = errors.New("sender and recipient must be distinct")
	ErrNonPositiveAmount  = errors.New("amount must be positive")
	ErrAmountExceedsLimit = errors.New("amount exceeds per-transaction limit")
)

// Ledger state machine sentinels.
var (
	ErrTransactionNotFound = errors.New("ledger transaction not found")
	ErrOwnershipMismatch   = errors.New("actor does not own this transaction")
	ErrInvalidTransition   = errors.New("status transition not allowed")
	ErrAlreadyInState      = errors.New("transaction already in target status")
	ErrStatusConflict      = errors.New("concurrent status update lost the race")
)

// FlowError is the typed error returned across component boundaries.
type FlowError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *FlowError) Unwrap() error { return e.Err }

// NewFlowError builds a FlowError wrapping cause (cause may be nil).
func NewFlowError(kind Kind, reason string, cause error) *FlowError {
	return &FlowError{Kind: kind, Reason: reason, Err: cause}
}

// KindOf extracts the taxonomy kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidAddress),
		errors.Is(err, ErrSameAddress),
		errors.Is(err, ErrNonPositiveAmount),
		errors.Is(err, ErrAmountExceedsLimit):
		return KindValidation
	case errors.Is(err, ErrTransactionNotFound):
		return KindNotFound
	case errors.Is(err, ErrOwnershipMismatch):
		return KindOwnership
	case errors.Is(err, ErrAlreadyInState):
		return KindAlreadyInState
	}
	return KindInternal
}

// ReasonOf returns the human-readable reason for err. Falls back to the
// error text for sentinel errors, which are already user-safe.
func ReasonOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return err.Error()
}

// ErrorResponse is the consistent JSON structure for all API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
