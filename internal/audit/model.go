// Package audit provides an append-only trail of fulfillment state
// transitions for compliance and out-of-band reconciliation. Records are
// never mutated or deleted by this subsystem.
package audit

import (
	"time"
)

// Actions recorded by the fulfillment core. One record is appended per
// state transition, not per event delivery; a no-op duplicate delivery
// produces no entry.
const (
	ActionIntentCompleted = "intent_completed"
	ActionIntentFailed    = "intent_failed"
	ActionIntentRefunded  = "intent_refunded"
	ActionGrantCreated    = "grant_created"

	// ActionFulfillmentInconsistency marks an intent whose status
	// advanced but whose grant step failed. A reconciliation sweep
	// consumes these; the request path never retries blindly.
	ActionFulfillmentInconsistency = "fulfillment_inconsistency"

	// ActionCapacityExhaustedPostPayment marks a paid registration that
	// found no seat left. Requires compensating action (manual refund).
	ActionCapacityExhaustedPostPayment = "capacity_exhausted_post_payment"
)

// Resource kinds referenced by audit records.
const (
	ResourceIntent       = "payment_intent"
	ResourceEnrollment   = "enrollment"
	ResourceRegistration = "event_registration"
)

// Record represents a single audit entry.
type Record struct {
	ID           string
	UserID       string
	Action       string
	ResourceKind string
	ResourceID   string
	Details      map[string]string // Opaque key/value payload
	OccurredAt   time.Time
}

// Entry represents the input for appending an audit record.
type Entry struct {
	UserID       string
	Action       string
	ResourceKind string
	ResourceID   string
	Details      map[string]string
}
