// Package enrollment provides the course-access grant model. At most one
// non-cancelled enrollment exists per (user, course) pair; creation is
// find-or-create so a duplicate webhook delivery or a lost race resolves
// to the winner's row.
package enrollment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Enrollment status values.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

// ErrEnrollmentNotFound is returned when an enrollment is not found.
var ErrEnrollmentNotFound = errors.New("enrollment not found")

// Enrollment represents granted access to a course. SourceIntentID is a
// back-reference to the payment intent that produced the grant, not an
// ownership pointer.
type Enrollment struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	CourseID       string     `json:"course_id"`
	Status         string     `json:"status"`
	SourceIntentID string     `json:"source_intent_id"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// Repository defines the persistence surface for enrollments.
type Repository interface {
	// FindOrCreate returns the existing non-cancelled enrollment for
	// (userID, courseID), or creates one. The boolean reports whether a
	// new row was created.
	FindOrCreate(ctx context.Context, userID, courseID, sourceIntentID string) (*Enrollment, bool, error)

	// GetActive retrieves the non-cancelled enrollment for (userID, courseID).
	GetActive(ctx context.Context, userID, courseID string) (*Enrollment, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu          sync.RWMutex
	enrollments map[string]*Enrollment // keyed by userID + "\x00" + courseID
}

// NewInMemoryRepository creates a new in-memory enrollment repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		enrollments: make(map[string]*Enrollment),
	}
}

func pairKey(userID, courseID string) string {
	return userID + "\x00" + courseID
}

// FindOrCreate returns the existing non-cancelled enrollment or creates one.
// The lookup and the insert happen under one lock, so two concurrent
// handlers for the same intent converge on a single row.
func (r *InMemoryRepository) FindOrCreate(ctx context.Context, userID, courseID, sourceIntentID string) (*Enrollment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(userID, courseID)
	if existing, ok := r.enrollments[key]; ok && existing.Status != StatusCancelled {
		copied := *existing
		return &copied, false, nil
	}

	now := time.Now().UTC()
	created := &Enrollment{
		ID:             uuid.New().String(),
		UserID:         userID,
		CourseID:       courseID,
		Status:         StatusActive,
		SourceIntentID: sourceIntentID,
		CreatedAt:      &now,
	}
	r.enrollments[key] = created

	copied := *created
	return &copied, true, nil
}

// GetActive retrieves the non-cancelled enrollment for (userID, courseID).
func (r *InMemoryRepository) GetActive(ctx context.Context, userID, courseID string) (*Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.enrollments[pairKey(userID, courseID)]
	if !ok || existing.Status == StatusCancelled {
		return nil, ErrEnrollmentNotFound
	}

	copied := *existing
	return &copied, nil
}
