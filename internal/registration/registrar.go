package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Registrar performs capacity-safe registration: an atomic
// increment-if-under-capacity followed by find-or-create of the
// registration row. A per-event mutex serializes the read-modify-write
// for one event without blocking registrations for other events; it is
// held only for the duration of the operation, never across the whole
// fulfillment transition.
type Registrar struct {
	registrations Repository
	counters      CounterStore
	logger        *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistrar creates a new Registrar.
func NewRegistrar(registrations Repository, counters CounterStore, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		registrations: registrations,
		counters:      counters,
		logger:        logger,
		locks:         make(map[string]*sync.Mutex),
	}
}

// eventLock returns the mutex for one event, creating it on first use.
func (r *Registrar) eventLock(eventID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[eventID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[eventID] = lock
	}
	return lock
}

// Register registers a user into an event without overselling. For any
// sequence of N concurrent attempts against capacity C, exactly
// min(N, C) succeed. A repeat attempt by an already-registered user
// returns the existing registration and consumes no seat.
func (r *Registrar) Register(ctx context.Context, userID, eventID, sourceIntentID string) (*Registration, error) {
	lock := r.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	// A duplicate delivery for an already-granted intent must not claim
	// a second seat.
	if existing, err := r.registrations.GetActive(ctx, userID, eventID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrRegistrationNotFound) {
		return nil, fmt.Errorf("failed to check existing registration: %w", err)
	}

	claimed, err := r.counters.TryIncrement(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim seat: %w", err)
	}
	if !claimed {
		return nil, ErrCapacityExhausted
	}

	registration, created, err := r.registrations.FindOrCreate(ctx, userID, eventID, sourceIntentID)
	if err != nil {
		// The seat was claimed but the row write failed; release the
		// seat so the counter stays consistent with the rows.
		if decErr := r.counters.Decrement(ctx, eventID); decErr != nil {
			r.logger.ErrorContext(ctx, "failed to release seat after registration failure",
				"event_id", eventID, "error", decErr)
		}
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	if !created {
		// Lost race with another process between the existence check and
		// the insert: the winner's row stands, our seat claim is excess.
		if decErr := r.counters.Decrement(ctx, eventID); decErr != nil {
			r.logger.ErrorContext(ctx, "failed to release duplicate seat claim",
				"event_id", eventID, "error", decErr)
		}
	}

	return registration, nil
}
