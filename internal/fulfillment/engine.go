// Package fulfillment turns verified gateway events into payment intent
// transitions and access grants. All state changes funnel through the
// Engine so paid and free flows share one idempotent path.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/classfair/classfair/internal/audit"
	"github.com/classfair/classfair/internal/catalog"
	"github.com/classfair/classfair/internal/enrollment"
	"github.com/classfair/classfair/internal/payment"
	"github.com/classfair/classfair/internal/registration"
	"github.com/classfair/classfair/internal/tracing"
)

// ErrOrphanEvent is returned when a gateway event references no known
// payment intent. Orphans are logged and acknowledged, never retried.
var ErrOrphanEvent = errors.New("event matches no known payment intent")

// Notification kinds enqueued by the engine.
const (
	NotifyPurchaseConfirmed = "purchase_confirmed"
	NotifyPaymentFailed     = "payment_failed"
	NotifyRefundProcessed   = "refund_processed"
)

// Notifier submits a fire-and-forget notification.
type Notifier interface {
	Enqueue(kind, recipient string, payload map[string]string)
}

// Engine applies gateway events to payment intents. It is safe for
// concurrent use; idempotency rests on the intent repository's
// conditional transition, not on in-process locking.
type Engine struct {
	intents     payment.IntentRepository
	enrollments enrollment.Repository
	registrar   *registration.Registrar
	emitter     *audit.Emitter
	notifier    Notifier
	metrics     *Metrics
	logger      *slog.Logger
}

// NewEngine creates an Engine. metrics and notifier may be nil.
func NewEngine(
	intents payment.IntentRepository,
	enrollments enrollment.Repository,
	registrar *registration.Registrar,
	emitter *audit.Emitter,
	notifier Notifier,
	metrics *Metrics,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		intents:     intents,
		enrollments: enrollments,
		registrar:   registrar,
		emitter:     emitter,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
	}
}

// Apply processes one verified gateway event. A nil return means the
// event is settled from the gateway's perspective: applied, a no-op
// duplicate, or terminally unprocessable. A non-nil return is an
// internal fault worth logging; callers still acknowledge the delivery
// so the gateway's retries don't amplify the fault.
func (e *Engine) Apply(ctx context.Context, n *payment.Notification) (err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "apply_gateway_event")
	defer func() { endSpan(err) }()

	switch ev := n.Event.(type) {
	case payment.Completed:
		return e.handleCompleted(ctx, n.ID, ev)
	case payment.Failed:
		return e.handleFailed(ctx, n.ID, ev)
	case payment.Refunded:
		return e.handleRefunded(ctx, n.ID, ev)
	case payment.Unrecognized:
		e.logger.InfoContext(ctx, "ignoring unrecognized gateway event",
			"event_id", n.ID,
			"event_type", ev.Type)
		return nil
	default:
		return fmt.Errorf("unhandled event variant %T", n.Event)
	}
}

func (e *Engine) handleCompleted(ctx context.Context, eventID string, ev payment.Completed) error {
	intent, err := e.intents.GetBySessionID(ctx, ev.SessionID)
	if errors.Is(err, payment.ErrIntentNotFound) {
		e.logOrphan(ctx, eventID, "completed", "session_id", ev.SessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up intent for session %s: %w", ev.SessionID, err)
	}

	patch := payment.TransitionPatch{}
	if ev.ChargeID != "" {
		patch.GatewayChargeID = &ev.ChargeID
	}

	ok, err := e.intents.TryTransition(ctx, intent.ID, payment.StatusPending, payment.StatusCompleted, patch)
	if err != nil {
		return fmt.Errorf("transitioning intent %s to completed: %w", intent.ID, err)
	}
	if !ok {
		// Duplicate delivery or an already settled intent (including a
		// refunded one, which never regresses). Nothing to do.
		e.logger.InfoContext(ctx, "completed event is a no-op",
			"event_id", eventID,
			"intent_id", intent.ID,
			"status", intent.Status)
		return nil
	}

	if e.metrics != nil {
		e.metrics.IncTransitions(payment.StatusPending, payment.StatusCompleted)
	}
	e.emitter.Emit(ctx, audit.Entry{
		UserID:       intent.UserID,
		Action:       audit.ActionIntentCompleted,
		ResourceKind: audit.ResourceIntent,
		ResourceID:   intent.ID,
		Details: map[string]string{
			"gateway_session_id": intent.GatewaySessionID,
			"gateway_charge_id":  ev.ChargeID,
			"amount_minor_units": strconv.FormatInt(intent.AmountMinorUnits, 10),
			"currency":           intent.Currency,
		},
	})

	if err := e.GrantForIntent(ctx, intent); err != nil {
		// The intent is paid but the grant failed. The money moved, so
		// we record the inconsistency for reconciliation instead of
		// retrying the whole delivery against an advanced state.
		e.recordGrantFailure(ctx, intent, err)
		return nil
	}

	e.notify(NotifyPurchaseConfirmed, intent)
	return nil
}

func (e *Engine) handleFailed(ctx context.Context, eventID string, ev payment.Failed) error {
	intent, err := e.lookupForFailure(ctx, ev)
	if errors.Is(err, payment.ErrIntentNotFound) {
		e.logOrphan(ctx, eventID, "failed", "charge_id", ev.ChargeID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up intent for failed charge %s: %w", ev.ChargeID, err)
	}

	patch := payment.TransitionPatch{}
	if ev.ChargeID != "" {
		patch.GatewayChargeID = &ev.ChargeID
	}

	ok, err := e.intents.TryTransition(ctx, intent.ID, payment.StatusPending, payment.StatusFailed, patch)
	if err != nil {
		return fmt.Errorf("transitioning intent %s to failed: %w", intent.ID, err)
	}
	if !ok {
		e.logger.InfoContext(ctx, "failed event is a no-op",
			"event_id", eventID,
			"intent_id", intent.ID,
			"status", intent.Status)
		return nil
	}

	if e.metrics != nil {
		e.metrics.IncTransitions(payment.StatusPending, payment.StatusFailed)
	}
	e.emitter.Emit(ctx, audit.Entry{
		UserID:       intent.UserID,
		Action:       audit.ActionIntentFailed,
		ResourceKind: audit.ResourceIntent,
		ResourceID:   intent.ID,
		Details: map[string]string{
			"gateway_session_id": intent.GatewaySessionID,
			"gateway_charge_id":  ev.ChargeID,
		},
	})

	e.notify(NotifyPaymentFailed, intent)
	return nil
}

// lookupForFailure resolves the intent a failure event refers to.
// Failure payloads carry the charge ID reliably and the session ID only
// when the gateway echoed our metadata, so both are tried.
func (e *Engine) lookupForFailure(ctx context.Context, ev payment.Failed) (*payment.Intent, error) {
	if ev.SessionID != "" {
		intent, err := e.intents.GetBySessionID(ctx, ev.SessionID)
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, payment.ErrIntentNotFound) {
			return nil, err
		}
	}
	if ev.ChargeID == "" {
		return nil, payment.ErrIntentNotFound
	}
	return e.intents.GetByChargeID(ctx, ev.ChargeID)
}

func (e *Engine) handleRefunded(ctx context.Context, eventID string, ev payment.Refunded) error {
	intent, err := e.intents.GetByChargeID(ctx, ev.ChargeID)
	if errors.Is(err, payment.ErrIntentNotFound) {
		e.logOrphan(ctx, eventID, "refunded", "charge_id", ev.ChargeID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up intent for refunded charge %s: %w", ev.ChargeID, err)
	}

	ok, err := e.intents.TryTransition(ctx, intent.ID, payment.StatusCompleted, payment.StatusRefunded, payment.TransitionPatch{})
	if err != nil {
		return fmt.Errorf("transitioning intent %s to refunded: %w", intent.ID, err)
	}
	if !ok {
		// Already refunded, or the charge never completed; either way
		// there is nothing to change.
		e.logger.InfoContext(ctx, "refunded event is a no-op",
			"event_id", eventID,
			"intent_id", intent.ID,
			"status", intent.Status)
		return nil
	}

	if e.metrics != nil {
		e.metrics.IncTransitions(payment.StatusCompleted, payment.StatusRefunded)
	}
	e.emitter.Emit(ctx, audit.Entry{
		UserID:       intent.UserID,
		Action:       audit.ActionIntentRefunded,
		ResourceKind: audit.ResourceIntent,
		ResourceID:   intent.ID,
		Details: map[string]string{
			"gateway_charge_id":  ev.ChargeID,
			"amount_minor_units": strconv.FormatInt(intent.AmountMinorUnits, 10),
		},
	})

	// A refund does not revoke the grant. Revocation is a manual,
	// case-by-case operator decision.
	e.notify(NotifyRefundProcessed, intent)
	return nil
}

// GrantForIntent provisions access for a completed intent: an
// enrollment for courses, a capacity-checked registration for events.
// It is the single grant path for both paid and free checkouts.
func (e *Engine) GrantForIntent(ctx context.Context, intent *payment.Intent) error {
	switch intent.Kind {
	case catalog.KindCourse:
		enr, created, err := e.enrollments.FindOrCreate(ctx, intent.UserID, intent.ItemID, intent.ID)
		if err != nil {
			return fmt.Errorf("creating enrollment: %w", err)
		}
		if created {
			e.emitter.Emit(ctx, audit.Entry{
				UserID:       intent.UserID,
				Action:       audit.ActionGrantCreated,
				ResourceKind: audit.ResourceEnrollment,
				ResourceID:   enr.ID,
				Details: map[string]string{
					"course_id": intent.ItemID,
					"intent_id": intent.ID,
				},
			})
		}
		return nil

	case catalog.KindEvent:
		reg, err := e.registrar.Register(ctx, intent.UserID, intent.ItemID, intent.ID)
		if err != nil {
			return fmt.Errorf("creating registration: %w", err)
		}
		e.emitter.Emit(ctx, audit.Entry{
			UserID:       intent.UserID,
			Action:       audit.ActionGrantCreated,
			ResourceKind: audit.ResourceRegistration,
			ResourceID:   reg.ID,
			Details: map[string]string{
				"event_id":  intent.ItemID,
				"intent_id": intent.ID,
			},
		})
		return nil

	default:
		return fmt.Errorf("unknown item kind %q", intent.Kind)
	}
}

func (e *Engine) recordGrantFailure(ctx context.Context, intent *payment.Intent, grantErr error) {
	action := audit.ActionFulfillmentInconsistency
	if errors.Is(grantErr, registration.ErrCapacityExhausted) {
		action = audit.ActionCapacityExhaustedPostPayment
	}

	e.logger.ErrorContext(ctx, "grant failed after successful payment",
		"intent_id", intent.ID,
		"user_id", intent.UserID,
		"kind", intent.Kind,
		"item_id", intent.ItemID,
		"error", grantErr)

	if e.metrics != nil {
		e.metrics.IncGrantFailures(intent.Kind)
		e.metrics.IncInconsistencies(intent.Kind)
	}
	e.emitter.Emit(ctx, audit.Entry{
		UserID:       intent.UserID,
		Action:       action,
		ResourceKind: audit.ResourceIntent,
		ResourceID:   intent.ID,
		Details: map[string]string{
			"kind":    intent.Kind,
			"item_id": intent.ItemID,
			"error":   grantErr.Error(),
		},
	})
}

func (e *Engine) logOrphan(ctx context.Context, eventID, eventType, refKey, refValue string) {
	e.logger.WarnContext(ctx, "orphan gateway event",
		"event_id", eventID,
		"event_type", eventType,
		refKey, refValue)
	if e.metrics != nil {
		e.metrics.IncOrphanEvents(eventType)
	}
}

func (e *Engine) notify(kind string, intent *payment.Intent) {
	if e.notifier == nil {
		return
	}
	e.notifier.Enqueue(kind, intent.UserID, map[string]string{
		"intent_id":          intent.ID,
		"item_id":            intent.ItemID,
		"kind":               intent.Kind,
		"amount_minor_units": strconv.FormatInt(intent.AmountMinorUnits, 10),
		"currency":           intent.Currency,
	})
}
