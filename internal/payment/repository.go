// Package payment provides repository access to payment intents.
package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrIntentNotFound is returned when a payment intent is not found.
var ErrIntentNotFound = errors.New("payment intent not found")

// ErrDuplicateSession is returned when an intent already exists for a
// gateway session ID. The session ID is unique across all intents.
var ErrDuplicateSession = errors.New("intent already exists for gateway session")

// TransitionPatch carries the fields written together with a status change.
type TransitionPatch struct {
	GatewayChargeID *string
}

// IntentRepository defines the narrow persistence surface for payment
// intents. Intents are only created pending and only mutated through
// TryTransition; there is no generic update.
type IntentRepository interface {
	// CreatePending persists a new intent in the pending status.
	// Returns ErrDuplicateSession if an intent already exists for the
	// same gateway session ID.
	CreatePending(ctx context.Context, intent *Intent) error

	// GetBySessionID retrieves an intent by its gateway session ID.
	GetBySessionID(ctx context.Context, sessionID string) (*Intent, error)

	// GetByChargeID retrieves an intent by its gateway charge ID.
	GetByChargeID(ctx context.Context, chargeID string) (*Intent, error)

	// TryTransition atomically moves the intent from one status to
	// another, applying the patch. Returns false with no error when the
	// intent is not currently in the from status; a concurrent handler
	// already advanced it and the caller treats that as a no-op.
	TryTransition(ctx context.Context, intentID, from, to string, patch TransitionPatch) (bool, error)
}

// InMemoryIntentRepository implements IntentRepository with in-memory storage.
type InMemoryIntentRepository struct {
	mu        sync.RWMutex
	intents   map[string]*Intent // keyed by intent ID
	bySession map[string]string  // gateway session ID -> intent ID
}

// NewInMemoryIntentRepository creates a new in-memory intent repository.
func NewInMemoryIntentRepository() *InMemoryIntentRepository {
	return &InMemoryIntentRepository{
		intents:   make(map[string]*Intent),
		bySession: make(map[string]string),
	}
}

// CreatePending persists a new intent in the pending status.
func (r *InMemoryIntentRepository) CreatePending(ctx context.Context, intent *Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySession[intent.GatewaySessionID]; exists {
		return ErrDuplicateSession
	}

	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	intent.Status = StatusPending

	now := time.Now().UTC()
	if intent.CreatedAt == nil {
		intent.CreatedAt = &now
	}
	if intent.UpdatedAt == nil {
		intent.UpdatedAt = &now
	}

	// Deep copy to prevent external mutation
	copied := *intent
	r.intents[intent.ID] = &copied
	r.bySession[intent.GatewaySessionID] = intent.ID

	return nil
}

// GetBySessionID retrieves an intent by its gateway session ID.
func (r *InMemoryIntentRepository) GetBySessionID(ctx context.Context, sessionID string) (*Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, ErrIntentNotFound
	}

	copied := *r.intents[id]
	return &copied, nil
}

// GetByChargeID retrieves an intent by its gateway charge ID.
func (r *InMemoryIntentRepository) GetByChargeID(ctx context.Context, chargeID string) (*Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, intent := range r.intents {
		if intent.GatewayChargeID != nil && *intent.GatewayChargeID == chargeID {
			copied := *intent
			return &copied, nil
		}
	}

	return nil, ErrIntentNotFound
}

// TryTransition atomically moves the intent from one status to another.
// The condition check and the write happen under one lock so a concurrent
// handler cannot observe a half-applied transition.
func (r *InMemoryIntentRepository) TryTransition(ctx context.Context, intentID, from, to string, patch TransitionPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	intent, ok := r.intents[intentID]
	if !ok {
		return false, ErrIntentNotFound
	}

	if intent.Status != from {
		// Another handler already advanced the state.
		return false, nil
	}

	intent.Status = to
	if patch.GatewayChargeID != nil {
		chargeID := *patch.GatewayChargeID
		intent.GatewayChargeID = &chargeID
	}
	now := time.Now().UTC()
	intent.UpdatedAt = &now

	return true, nil
}
