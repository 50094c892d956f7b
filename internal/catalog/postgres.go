package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresCourseRepository implements CourseRepository using PostgreSQL.
type PostgresCourseRepository struct {
	db *sql.DB
}

// NewPostgresCourseRepository creates a new PostgresCourseRepository.
func NewPostgresCourseRepository(db *sql.DB) *PostgresCourseRepository {
	return &PostgresCourseRepository{db: db}
}

// GetByID retrieves a course by ID.
func (r *PostgresCourseRepository) GetByID(ctx context.Context, id string) (*Course, error) {
	query := `
		SELECT id, title, price_minor_units, currency, published, created_at
		FROM courses
		WHERE id = $1
	`
	var course Course
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&course.ID,
		&course.Title,
		&course.PriceMinorUnits,
		&course.Currency,
		&course.Published,
		&course.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query course: %w", err)
	}
	return &course, nil
}

// PostgresEventRepository implements EventRepository using PostgreSQL.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a new PostgresEventRepository.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

// GetByID retrieves an event by ID.
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	query := `
		SELECT id, title, price_minor_units, currency, capacity, starts_at, created_at
		FROM events
		WHERE id = $1
	`
	var event Event
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID,
		&event.Title,
		&event.PriceMinorUnits,
		&event.Currency,
		&event.Capacity,
		&event.StartsAt,
		&event.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	return &event, nil
}
