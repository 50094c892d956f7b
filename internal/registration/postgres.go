package registration

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindOrCreate inserts the registration, tolerating the lost race where
// a concurrent handler already created it.
func (r *PostgresRepository) FindOrCreate(ctx context.Context, userID, eventID, sourceIntentID string) (*Registration, bool, error) {
	insertQuery := `
		INSERT INTO event_registrations (id, user_id, event_id, status, source_intent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, event_id) WHERE status <> 'cancelled' DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, insertQuery,
		uuid.New().String(), userID, eventID, StatusActive, sourceIntentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert registration: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	existing, err := r.GetActive(ctx, userID, eventID)
	if err != nil {
		return nil, false, err
	}
	return existing, affected > 0, nil
}

// GetActive retrieves the non-cancelled registration for (userID, eventID).
func (r *PostgresRepository) GetActive(ctx context.Context, userID, eventID string) (*Registration, error) {
	query := `
		SELECT id, user_id, event_id, status, source_intent_id, created_at
		FROM event_registrations
		WHERE user_id = $1 AND event_id = $2 AND status <> 'cancelled'
	`
	var reg Registration
	err := r.db.QueryRowContext(ctx, query, userID, eventID).Scan(
		&reg.ID, &reg.UserID, &reg.EventID, &reg.Status, &reg.SourceIntentID, &reg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query registration: %w", err)
	}
	return &reg, nil
}

// PostgresCounterStore implements CounterStore using PostgreSQL. The
// increment is one conditional UPDATE; the capacity check and the write
// cannot be split by a concurrent caller.
type PostgresCounterStore struct {
	db *sql.DB
}

// NewPostgresCounterStore creates a new PostgresCounterStore.
func NewPostgresCounterStore(db *sql.DB) *PostgresCounterStore {
	return &PostgresCounterStore{db: db}
}

// TryIncrement performs a single atomic increment-if-under-capacity.
func (s *PostgresCounterStore) TryIncrement(ctx context.Context, eventID string) (bool, error) {
	query := `
		UPDATE capacity_counters
		SET registered_count = registered_count + 1
		WHERE event_id = $1 AND registered_count < capacity
	`
	result, err := s.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to increment capacity counter: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		checkQuery := `SELECT EXISTS(SELECT 1 FROM capacity_counters WHERE event_id = $1)`
		if err := s.db.QueryRowContext(ctx, checkQuery, eventID).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check counter existence: %w", err)
		}
		if !exists {
			return false, ErrCounterNotFound
		}
		return false, nil
	}
	return true, nil
}

// Decrement releases one previously claimed seat, never going below zero.
func (s *PostgresCounterStore) Decrement(ctx context.Context, eventID string) error {
	query := `
		UPDATE capacity_counters
		SET registered_count = registered_count - 1
		WHERE event_id = $1 AND registered_count > 0
	`
	if _, err := s.db.ExecContext(ctx, query, eventID); err != nil {
		return fmt.Errorf("failed to decrement capacity counter: %w", err)
	}
	return nil
}

// Get retrieves the counter for an event.
func (s *PostgresCounterStore) Get(ctx context.Context, eventID string) (*Counter, error) {
	query := `SELECT event_id, capacity, registered_count FROM capacity_counters WHERE event_id = $1`
	var counter Counter
	err := s.db.QueryRowContext(ctx, query, eventID).Scan(
		&counter.EventID, &counter.Capacity, &counter.RegisteredCount)
	if err == sql.ErrNoRows {
		return nil, ErrCounterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query capacity counter: %w", err)
	}
	return &counter, nil
}
