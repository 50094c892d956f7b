package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository using PostgreSQL. The table
// is insert-only; this subsystem issues no UPDATE or DELETE against it.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append records an entry to the audit log.
func (r *PostgresRepository) Append(ctx context.Context, entry Entry) (*Record, error) {
	record := &Record{
		ID:           uuid.New().String(),
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceKind: entry.ResourceKind,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		OccurredAt:   time.Now().UTC(),
	}

	details, err := json.Marshal(record.Details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_records (id, user_id, action, resource_kind, resource_id, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.Action, record.ResourceKind,
		record.ResourceID, details, record.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append audit record: %w", err)
	}

	return record, nil
}

// QueryByResource retrieves records for a specific resource, newest first.
func (r *PostgresRepository) QueryByResource(ctx context.Context, resourceKind, resourceID string, limit int) ([]*Record, error) {
	query := `
		SELECT id, user_id, action, resource_kind, resource_id, details, occurred_at
		FROM audit_records
		WHERE resource_kind = $1 AND resource_id = $2
		ORDER BY occurred_at DESC
	`
	return r.queryRecords(ctx, query, limit, resourceKind, resourceID)
}

// QueryByUser retrieves records for a specific user, newest first.
func (r *PostgresRepository) QueryByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	query := `
		SELECT id, user_id, action, resource_kind, resource_id, details, occurred_at
		FROM audit_records
		WHERE user_id = $1
		ORDER BY occurred_at DESC
	`
	return r.queryRecords(ctx, query, limit, userID)
}

func (r *PostgresRepository) queryRecords(ctx context.Context, query string, limit int, args ...any) ([]*Record, error) {
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var results []*Record
	for rows.Next() {
		var record Record
		var details []byte
		if err := rows.Scan(&record.ID, &record.UserID, &record.Action,
			&record.ResourceKind, &record.ResourceID, &details, &record.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &record.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		results = append(results, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}

	return results, nil
}
