// Package registration provides capacity-safe registration of users into
// finite-capacity events. The counter increment is the one place in the
// system where a naive read-then-write race would oversell seats.
package registration

import "time"

// Registration status values.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// Registration represents granted access to an event.
type Registration struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	EventID        string     `json:"event_id"`
	Status         string     `json:"status"`
	SourceIntentID string     `json:"source_intent_id"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// Counter tracks seat usage for one event. RegisteredCount never exceeds
// Capacity, even under concurrent registration attempts.
type Counter struct {
	EventID         string `json:"event_id"`
	Capacity        int    `json:"capacity"` // Fixed at event creation
	RegisteredCount int    `json:"registered_count"`
}

// Remaining returns the number of unclaimed seats.
func (c *Counter) Remaining() int {
	return c.Capacity - c.RegisteredCount
}
