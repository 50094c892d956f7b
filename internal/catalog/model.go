// Package catalog provides read access to the purchasable items of the
// marketplace: courses and capacity-bounded events. The fulfillment core
// consumes it for item existence checks and canonical server-side pricing.
package catalog

import "time"

// ItemKind identifies what kind of catalog item a purchase targets.
const (
	KindCourse = "course"
	KindEvent  = "event"
)

// Course represents a purchasable course.
type Course struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	PriceMinorUnits int64      `json:"price_minor_units"` // Canonical price in the smallest currency unit
	Currency        string     `json:"currency"`
	Published       bool       `json:"published"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

// Event represents a purchasable event with finite capacity.
type Event struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	PriceMinorUnits int64      `json:"price_minor_units"` // Canonical price in the smallest currency unit
	Currency        string     `json:"currency"`
	Capacity        int        `json:"capacity"` // Fixed at event creation
	StartsAt        time.Time  `json:"starts_at"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}
