// Package payment provides webhook delivery tracking.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEventAlreadyProcessed is returned when attempting to record a
// duplicate webhook delivery. The fulfillment engine is idempotent
// without this check; recording deliveries lets exact duplicates
// short-circuit before touching the store.
var ErrEventAlreadyProcessed = errors.New("webhook event already processed")

// WebhookDelivery represents a processed webhook delivery.
type WebhookDelivery struct {
	ID          string
	EventID     string // Gateway event ID
	EventType   string
	ProcessedAt time.Time
}

// WebhookRepository defines methods for webhook delivery tracking.
type WebhookRepository interface {
	// RecordDelivery records a webhook delivery as processed.
	// Returns ErrEventAlreadyProcessed if the event was already recorded.
	RecordDelivery(ctx context.Context, eventID, eventType string) error

	// HasProcessed checks if a delivery has already been processed.
	HasProcessed(ctx context.Context, eventID string) (bool, error)
}

// InMemoryWebhookRepository implements WebhookRepository with in-memory storage.
type InMemoryWebhookRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*WebhookDelivery // keyed by gateway event ID
}

// NewInMemoryWebhookRepository creates a new in-memory webhook repository.
func NewInMemoryWebhookRepository() *InMemoryWebhookRepository {
	return &InMemoryWebhookRepository{
		deliveries: make(map[string]*WebhookDelivery),
	}
}

// RecordDelivery records a webhook delivery as processed.
func (r *InMemoryWebhookRepository) RecordDelivery(ctx context.Context, eventID, eventType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.deliveries[eventID]; exists {
		return ErrEventAlreadyProcessed
	}

	r.deliveries[eventID] = &WebhookDelivery{
		ID:          uuid.New().String(),
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now().UTC(),
	}

	return nil
}

// HasProcessed checks if a delivery has already been processed.
func (r *InMemoryWebhookRepository) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.deliveries[eventID]
	return exists, nil
}

// PostgresWebhookRepository implements WebhookRepository using PostgreSQL.
type PostgresWebhookRepository struct {
	db *sql.DB
}

// NewPostgresWebhookRepository creates a new PostgresWebhookRepository.
func NewPostgresWebhookRepository(db *sql.DB) *PostgresWebhookRepository {
	return &PostgresWebhookRepository{db: db}
}

// RecordDelivery records a webhook delivery, relying on the unique
// constraint over the gateway event ID to reject duplicates.
func (r *PostgresWebhookRepository) RecordDelivery(ctx context.Context, eventID, eventType string) error {
	query := `
		INSERT INTO webhook_deliveries (id, event_id, event_type, processed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, uuid.New().String(), eventID, eventType)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEventAlreadyProcessed
	}
	return nil
}

// HasProcessed checks if a delivery has already been processed.
func (r *PostgresWebhookRepository) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM webhook_deliveries WHERE event_id = $1)`
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check webhook delivery: %w", err)
	}
	return exists, nil
}
