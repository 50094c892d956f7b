package enrollment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/classfair/classfair/internal/tracing"
)

// PostgresRepository implements Repository using PostgreSQL. A partial
// unique index over (user_id, course_id) WHERE status <> 'cancelled'
// enforces the single-grant invariant at the store.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindOrCreate inserts the enrollment, tolerating the lost race where a
// concurrent handler already created it; the loser reads the winner's row.
func (r *PostgresRepository) FindOrCreate(ctx context.Context, userID, courseID, sourceIntentID string) (_ *Enrollment, _ bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "enrollments", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	insertQuery := `
		INSERT INTO enrollments (id, user_id, course_id, status, source_intent_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, course_id) WHERE status <> 'cancelled' DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, insertQuery,
		uuid.New().String(), userID, courseID, StatusActive, sourceIntentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	existing, err := r.GetActive(ctx, userID, courseID)
	if err != nil {
		return nil, false, err
	}
	return existing, affected > 0, nil
}

// GetActive retrieves the non-cancelled enrollment for (userID, courseID).
func (r *PostgresRepository) GetActive(ctx context.Context, userID, courseID string) (*Enrollment, error) {
	query := `
		SELECT id, user_id, course_id, status, source_intent_id, created_at
		FROM enrollments
		WHERE user_id = $1 AND course_id = $2 AND status <> 'cancelled'
	`
	var e Enrollment
	err := r.db.QueryRowContext(ctx, query, userID, courseID).Scan(
		&e.ID, &e.UserID, &e.CourseID, &e.Status, &e.SourceIntentID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollment: %w", err)
	}
	return &e, nil
}
