package payment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/classfair/classfair/internal/tracing"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresIntentRepository implements IntentRepository using PostgreSQL.
// The status transition is a single conditional UPDATE so that only one
// of any number of concurrent handlers can move the intent out of a
// given status.
type PostgresIntentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresIntentRepository creates a new PostgresIntentRepository.
func NewPostgresIntentRepository(db *sql.DB, logger *slog.Logger) *PostgresIntentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresIntentRepository{db: db, logger: logger}
}

// CreatePending persists a new intent in the pending status.
func (r *PostgresIntentRepository) CreatePending(ctx context.Context, intent *Intent) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payment_intents", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	intent.Status = StatusPending

	query := `
		INSERT INTO payment_intents
			(id, user_id, kind, item_id, amount_minor_units, currency, gateway_session_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err = r.db.ExecContext(ctx, query,
		intent.ID, intent.UserID, intent.Kind, intent.ItemID,
		intent.AmountMinorUnits, intent.Currency, intent.GatewaySessionID, intent.Status)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateSession
		}
		return fmt.Errorf("failed to insert payment intent: %w", err)
	}
	return nil
}

// GetBySessionID retrieves an intent by its gateway session ID.
func (r *PostgresIntentRepository) GetBySessionID(ctx context.Context, sessionID string) (*Intent, error) {
	return r.getOne(ctx, `gateway_session_id = $1`, sessionID)
}

// GetByChargeID retrieves an intent by its gateway charge ID.
func (r *PostgresIntentRepository) GetByChargeID(ctx context.Context, chargeID string) (*Intent, error) {
	return r.getOne(ctx, `gateway_charge_id = $1`, chargeID)
}

func (r *PostgresIntentRepository) getOne(ctx context.Context, where string, arg any) (_ *Intent, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payment_intents", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, user_id, kind, item_id, amount_minor_units, currency,
		       gateway_session_id, gateway_charge_id, status, created_at, updated_at
		FROM payment_intents
		WHERE ` + where
	var intent Intent
	err = r.db.QueryRowContext(ctx, query, arg).Scan(
		&intent.ID, &intent.UserID, &intent.Kind, &intent.ItemID,
		&intent.AmountMinorUnits, &intent.Currency, &intent.GatewaySessionID,
		&intent.GatewayChargeID, &intent.Status, &intent.CreatedAt, &intent.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payment intent: %w", err)
	}
	return &intent, nil
}

// TryTransition atomically moves the intent from one status to another.
// The WHERE clause carries the expected current status, so a lost race
// simply affects zero rows.
func (r *PostgresIntentRepository) TryTransition(ctx context.Context, intentID, from, to string, patch TransitionPatch) (_ bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "payment_intents", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	query := `
		UPDATE payment_intents
		SET status = $1,
		    gateway_charge_id = COALESCE($2, gateway_charge_id),
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, to, patch.GatewayChargeID, intentID, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment intent: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the intent does not exist or another handler won the race.
		var exists bool
		checkQuery := `SELECT EXISTS(SELECT 1 FROM payment_intents WHERE id = $1)`
		if err := r.db.QueryRowContext(ctx, checkQuery, intentID).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check intent existence: %w", err)
		}
		if !exists {
			return false, ErrIntentNotFound
		}
		return false, nil
	}

	r.logger.InfoContext(ctx, "payment intent transitioned",
		"intent_id", intentID, "from", from, "to", to)
	return true, nil
}
