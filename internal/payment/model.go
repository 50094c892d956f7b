// Package payment provides the payment-intent model and services for
// gateway checkout and webhook processing.
package payment

import "time"

// Intent status values. Transitions are only legal along
// pending -> completed, pending -> failed, completed -> refunded.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// Intent tracks one checkout attempt from creation to settlement.
// GatewaySessionID is unique across all intents and is the idempotency
// anchor for duplicate webhook deliveries. Intents are never deleted;
// they are a financial record.
type Intent struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Kind             string     `json:"kind"` // "course" or "event"
	ItemID           string     `json:"item_id"`
	AmountMinorUnits int64      `json:"amount_minor_units"` // Smallest currency unit, never floating point
	Currency         string     `json:"currency"`
	GatewaySessionID string     `json:"gateway_session_id"`
	GatewayChargeID  *string    `json:"gateway_charge_id,omitempty"` // Nil until settled
	Status           string     `json:"status"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// ValidTransition reports whether moving an intent from one status to
// another is legal. A transition into the current status is handled by
// callers as a no-op, not through this check.
func ValidTransition(from, to string) bool {
	switch {
	case from == StatusPending && to == StatusCompleted:
		return true
	case from == StatusPending && to == StatusFailed:
		return true
	case from == StatusCompleted && to == StatusRefunded:
		return true
	}
	return false
}
