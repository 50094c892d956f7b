package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/classfair/classfair/internal/fulfillment"
	"github.com/classfair/classfair/internal/middleware"
	"github.com/classfair/classfair/internal/payment"
)

// WebhookHandlers holds dependencies for webhook-related HTTP handlers.
type WebhookHandlers struct {
	verifier    *payment.Verifier
	webhookRepo payment.WebhookRepository
	engine      *fulfillment.Engine
}

// NewWebhookHandlers creates a new WebhookHandlers instance.
func NewWebhookHandlers(
	verifier *payment.Verifier,
	webhookRepo payment.WebhookRepository,
	engine *fulfillment.Engine,
) *WebhookHandlers {
	return &WebhookHandlers{
		verifier:    verifier,
		webhookRepo: webhookRepo,
		engine:      engine,
	}
}

// HandleStripeWebhook ingests gateway events with signature verification.
// POST /internal/stripe
//
// Only a signature failure earns a non-2xx, so the gateway retries it.
// Every other condition, including malformed payloads, orphan events,
// and internal faults, is acknowledged with 200: a retry would hit the
// same terminal condition, and unacked deliveries eventually disable
// the endpoint on the gateway side.
func (h *WebhookHandlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return
	}

	notification, err := h.verifier.VerifyAndParse(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			slog.WarnContext(ctx, "webhook signature verification failed", "error", err)
			ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidSignature)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSignature, "invalid signature")
			return
		}
		// Authentic but undecodable. Terminal: acknowledge so the
		// gateway stops resending it, and leave the rest to the logs.
		slog.ErrorContext(ctx, "webhook event unprocessable", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	slog.InfoContext(ctx, "webhook event received", "event_id", notification.ID)

	if err := h.webhookRepo.RecordDelivery(ctx, notification.ID, eventTypeLabel(notification.Event)); err != nil {
		if errors.Is(err, payment.ErrEventAlreadyProcessed) {
			slog.InfoContext(ctx, "webhook event already processed, ignoring", "event_id", notification.ID)
			w.WriteHeader(http.StatusOK)
			return
		}
		// Dedupe storage fault. Proceed anyway: the engine's
		// conditional transitions make a duplicate apply a no-op.
		slog.ErrorContext(ctx, "failed to record webhook delivery", "event_id", notification.ID, "error", err)
	}

	if err := h.engine.Apply(ctx, notification); err != nil {
		slog.ErrorContext(ctx, "failed to apply webhook event", "event_id", notification.ID, "error", err)
	}

	w.WriteHeader(http.StatusOK)
}

func eventTypeLabel(ev payment.Event) string {
	switch e := ev.(type) {
	case payment.Completed:
		return "completed"
	case payment.Failed:
		return "failed"
	case payment.Refunded:
		return "refunded"
	case payment.Unrecognized:
		return e.Type
	default:
		return "unknown"
	}
}
