// Package registration provides repositories for registrations and
// capacity counters.
package registration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRegistrationNotFound is returned when a registration is not found.
var ErrRegistrationNotFound = errors.New("registration not found")

// ErrCounterNotFound is returned when no capacity counter exists for an event.
var ErrCounterNotFound = errors.New("capacity counter not found")

// ErrCapacityExhausted is returned when an event has no seats left.
var ErrCapacityExhausted = errors.New("event capacity exhausted")

// Repository defines the persistence surface for registrations.
type Repository interface {
	// FindOrCreate returns the existing non-cancelled registration for
	// (userID, eventID), or creates one. The boolean reports whether a
	// new row was created.
	FindOrCreate(ctx context.Context, userID, eventID, sourceIntentID string) (*Registration, bool, error)

	// GetActive retrieves the non-cancelled registration for (userID, eventID).
	GetActive(ctx context.Context, userID, eventID string) (*Registration, error)
}

// CounterStore defines the atomic operations on capacity counters.
type CounterStore interface {
	// TryIncrement performs a single atomic increment-if-under-capacity.
	// Returns false when the counter is already at capacity.
	TryIncrement(ctx context.Context, eventID string) (bool, error)

	// Decrement releases one previously claimed seat. Used only to
	// compensate a TryIncrement whose registration turned out to already
	// exist.
	Decrement(ctx context.Context, eventID string) error

	// Get retrieves the counter for an event.
	Get(ctx context.Context, eventID string) (*Counter, error)
}

// InMemoryRepository implements Repository with in-memory storage.
type InMemoryRepository struct {
	mu            sync.RWMutex
	registrations map[string]*Registration // keyed by userID + "\x00" + eventID
}

// NewInMemoryRepository creates a new in-memory registration repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		registrations: make(map[string]*Registration),
	}
}

func pairKey(userID, eventID string) string {
	return userID + "\x00" + eventID
}

// FindOrCreate returns the existing non-cancelled registration or creates one.
func (r *InMemoryRepository) FindOrCreate(ctx context.Context, userID, eventID, sourceIntentID string) (*Registration, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey(userID, eventID)
	if existing, ok := r.registrations[key]; ok && existing.Status != StatusCancelled {
		copied := *existing
		return &copied, false, nil
	}

	now := time.Now().UTC()
	created := &Registration{
		ID:             uuid.New().String(),
		UserID:         userID,
		EventID:        eventID,
		Status:         StatusActive,
		SourceIntentID: sourceIntentID,
		CreatedAt:      &now,
	}
	r.registrations[key] = created

	copied := *created
	return &copied, true, nil
}

// GetActive retrieves the non-cancelled registration for (userID, eventID).
func (r *InMemoryRepository) GetActive(ctx context.Context, userID, eventID string) (*Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing, ok := r.registrations[pairKey(userID, eventID)]
	if !ok || existing.Status == StatusCancelled {
		return nil, ErrRegistrationNotFound
	}

	copied := *existing
	return &copied, nil
}

// InMemoryCounterStore implements CounterStore with in-memory storage.
// The check and the increment happen under one lock, so concurrent
// callers can never drive the count past capacity.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*Counter
}

// NewInMemoryCounterStore creates a new in-memory counter store.
func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		counters: make(map[string]*Counter),
	}
}

// Put adds or replaces a counter. Intended for tests and seeding.
func (s *InMemoryCounterStore) Put(counter *Counter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *counter
	s.counters[counter.EventID] = &copied
}

// TryIncrement performs a single atomic increment-if-under-capacity.
func (s *InMemoryCounterStore) TryIncrement(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[eventID]
	if !ok {
		return false, ErrCounterNotFound
	}
	if counter.RegisteredCount >= counter.Capacity {
		return false, nil
	}

	counter.RegisteredCount++
	return true, nil
}

// Decrement releases one previously claimed seat.
func (s *InMemoryCounterStore) Decrement(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[eventID]
	if !ok {
		return ErrCounterNotFound
	}
	if counter.RegisteredCount > 0 {
		counter.RegisteredCount--
	}
	return nil
}

// Get retrieves the counter for an event.
func (s *InMemoryCounterStore) Get(ctx context.Context, eventID string) (*Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[eventID]
	if !ok {
		return nil, ErrCounterNotFound
	}

	copied := *counter
	return &copied, nil
}
