package audit

import (
	"context"
	"log/slog"
)

// Emitter appends audit records best-effort: a failed write is logged
// and never propagates back to fail the fulfillment transition the
// record describes.
type Emitter struct {
	repo   Repository
	logger *slog.Logger
}

// NewEmitter creates a new Emitter.
func NewEmitter(repo Repository, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{repo: repo, logger: logger}
}

// Emit appends one audit record. Errors are logged, not returned.
func (e *Emitter) Emit(ctx context.Context, entry Entry) {
	if _, err := e.repo.Append(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "failed to append audit record",
			"action", entry.Action,
			"resource_kind", entry.ResourceKind,
			"resource_id", entry.ResourceID,
			"error", err)
	}
}
