package notify

import (
	"context"

	"github.com/custopay/transfer-relay/internal/model"
)

// Outcome labels a terminal transition for the notification consumer.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Dispatcher delivers terminal-state events to the notification pipeline.
// Delivery is best-effort: a dispatch failure is logged by the implementation
// and never propagated, so it cannot roll back a ledger transition.
type Dispatcher interface {
	Notify(ctx context.Context, ownerID string, summary model.Summary, outcome Outcome)
	Close()
}
