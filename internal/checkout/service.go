// Package checkout starts purchases: it resolves the catalog item,
// prices it server-side, and either opens a hosted gateway session or,
// for free items, completes the purchase immediately through the same
// fulfillment path paid items use.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/classfair/classfair/internal/catalog"
	"github.com/classfair/classfair/internal/enrollment"
	"github.com/classfair/classfair/internal/fulfillment"
	"github.com/classfair/classfair/internal/payment"
	"github.com/classfair/classfair/internal/registration"
)

// ErrItemNotFound is returned when the requested item does not exist or
// is not available for purchase.
var ErrItemNotFound = errors.New("item not found")

// ErrAlreadyGranted is returned when the user already holds access to
// the item. No gateway session is created and no money moves.
var ErrAlreadyGranted = errors.New("access already granted")

// ErrGatewayUnavailable is returned when the payment gateway cannot be
// reached or fails transiently. Safe to retry.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ErrGrantMissing is returned when a free checkout ran to completion but
// the grant cannot be found afterwards. This signals a storage fault,
// not a full event.
var ErrGrantMissing = errors.New("grant missing after fulfillment")

// freeSessionPrefix namespaces synthetic session IDs for zero-price
// checkouts so they can never collide with gateway-issued IDs.
const freeSessionPrefix = "free_"

// BeginParams identifies what the user wants to buy.
type BeginParams struct {
	UserID string
	Kind   string
	ItemID string
}

// Result is the outcome of starting a checkout. Exactly one of
// RedirectURL (paid, pending gateway confirmation) or Granted (free,
// access provisioned synchronously) is meaningful.
type Result struct {
	IntentID    string `json:"intent_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Granted     bool   `json:"granted"`
}

// Service coordinates checkout initiation.
type Service struct {
	courses       catalog.CourseRepository
	events        catalog.EventRepository
	intents       payment.IntentRepository
	enrollments   enrollment.Repository
	registrations registration.Repository
	counters      registration.CounterStore
	gateway       payment.Client
	engine        *fulfillment.Engine
	logger        *slog.Logger

	successURL string
	cancelURL  string
}

// NewService creates a checkout Service.
func NewService(
	courses catalog.CourseRepository,
	events catalog.EventRepository,
	intents payment.IntentRepository,
	enrollments enrollment.Repository,
	registrations registration.Repository,
	counters registration.CounterStore,
	gateway payment.Client,
	engine *fulfillment.Engine,
	successURL, cancelURL string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		courses:       courses,
		events:        events,
		intents:       intents,
		enrollments:   enrollments,
		registrations: registrations,
		counters:      counters,
		gateway:       gateway,
		engine:        engine,
		successURL:    successURL,
		cancelURL:     cancelURL,
		logger:        logger,
	}
}

// item is the priced view of a purchasable catalog entry.
type item struct {
	name             string
	amountMinorUnits int64
	currency         string
}

// Begin starts a checkout. Preconditions are checked in order: the item
// must exist, the user must not already hold access, and for events a
// seat must plausibly remain. Only then does the gateway get involved.
func (s *Service) Begin(ctx context.Context, params BeginParams) (*Result, error) {
	it, err := s.resolveItem(ctx, params.Kind, params.ItemID)
	if err != nil {
		return nil, err
	}

	if err := s.checkNotGranted(ctx, params); err != nil {
		return nil, err
	}

	if params.Kind == catalog.KindEvent {
		counter, err := s.counters.Get(ctx, params.ItemID)
		if err != nil {
			return nil, fmt.Errorf("checking event capacity: %w", err)
		}
		// Advisory check: the authoritative reservation happens at
		// grant time. This just avoids charging for an obviously full
		// event.
		if counter.Remaining() <= 0 {
			return nil, registration.ErrCapacityExhausted
		}
	}

	if it.amountMinorUnits == 0 {
		return s.beginFree(ctx, params, it)
	}
	return s.beginPaid(ctx, params, it)
}

func (s *Service) resolveItem(ctx context.Context, kind, itemID string) (*item, error) {
	switch kind {
	case catalog.KindCourse:
		course, err := s.courses.GetByID(ctx, itemID)
		if errors.Is(err, catalog.ErrCourseNotFound) {
			return nil, ErrItemNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("loading course %s: %w", itemID, err)
		}
		if !course.Published {
			return nil, ErrItemNotFound
		}
		return &item{
			name:             course.Title,
			amountMinorUnits: course.PriceMinorUnits,
			currency:         course.Currency,
		}, nil

	case catalog.KindEvent:
		event, err := s.events.GetByID(ctx, itemID)
		if errors.Is(err, catalog.ErrEventNotFound) {
			return nil, ErrItemNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("loading event %s: %w", itemID, err)
		}
		return &item{
			name:             event.Title,
			amountMinorUnits: event.PriceMinorUnits,
			currency:         event.Currency,
		}, nil

	default:
		return nil, ErrItemNotFound
	}
}

func (s *Service) checkNotGranted(ctx context.Context, params BeginParams) error {
	switch params.Kind {
	case catalog.KindCourse:
		_, err := s.enrollments.GetActive(ctx, params.UserID, params.ItemID)
		if err == nil {
			return ErrAlreadyGranted
		}
		if !errors.Is(err, enrollment.ErrEnrollmentNotFound) {
			return fmt.Errorf("checking existing enrollment: %w", err)
		}
	case catalog.KindEvent:
		_, err := s.registrations.GetActive(ctx, params.UserID, params.ItemID)
		if err == nil {
			return ErrAlreadyGranted
		}
		if !errors.Is(err, registration.ErrRegistrationNotFound) {
			return fmt.Errorf("checking existing registration: %w", err)
		}
	}
	return nil
}

// beginFree completes a zero-price purchase synchronously. It creates a
// pending intent under a synthetic session ID and drives it through the
// same engine paid purchases use, so idempotency, capacity, and audit
// behave identically.
func (s *Service) beginFree(ctx context.Context, params BeginParams, it *item) (*Result, error) {
	intent := &payment.Intent{
		ID:               uuid.NewString(),
		UserID:           params.UserID,
		Kind:             params.Kind,
		ItemID:           params.ItemID,
		AmountMinorUnits: 0,
		Currency:         it.currency,
		GatewaySessionID: freeSessionPrefix + uuid.NewString(),
		Status:           payment.StatusPending,
	}
	if err := s.intents.CreatePending(ctx, intent); err != nil {
		return nil, fmt.Errorf("creating free intent: %w", err)
	}

	err := s.engine.Apply(ctx, &payment.Notification{
		ID:    intent.GatewaySessionID,
		Event: payment.Completed{SessionID: intent.GatewaySessionID},
	})
	if err != nil {
		return nil, fmt.Errorf("completing free intent: %w", err)
	}

	// The engine records grant failures (full event, storage fault) as
	// inconsistencies rather than returning them; for the synchronous
	// free path the caller needs the real outcome, so re-check.
	if err := s.verifyGranted(ctx, params); err != nil {
		return nil, err
	}

	return &Result{IntentID: intent.ID, Granted: true}, nil
}

func (s *Service) verifyGranted(ctx context.Context, params BeginParams) error {
	switch params.Kind {
	case catalog.KindCourse:
		if _, err := s.enrollments.GetActive(ctx, params.UserID, params.ItemID); err != nil {
			if errors.Is(err, enrollment.ErrEnrollmentNotFound) {
				// Courses have no capacity, so a missing grant here can
				// only be a storage fault the engine recorded.
				return ErrGrantMissing
			}
			return err
		}
	case catalog.KindEvent:
		if _, err := s.registrations.GetActive(ctx, params.UserID, params.ItemID); err != nil {
			if errors.Is(err, registration.ErrRegistrationNotFound) {
				return registration.ErrCapacityExhausted
			}
			return err
		}
	}
	return nil
}

func (s *Service) beginPaid(ctx context.Context, params BeginParams, it *item) (*Result, error) {
	sess, err := s.gateway.CreateCheckoutSession(&payment.CheckoutSessionParams{
		AmountMinorUnits: it.amountMinorUnits,
		Currency:         it.currency,
		ItemName:         it.name,
		UserID:           params.UserID,
		Kind:             params.Kind,
		ItemID:           params.ItemID,
		SuccessURL:       s.successURL,
		CancelURL:        s.cancelURL,
	})
	if err != nil {
		if payment.IsGatewayUnavailable(err) {
			s.logger.WarnContext(ctx, "gateway unavailable during checkout",
				"kind", params.Kind,
				"item_id", params.ItemID,
				"error", err)
			return nil, ErrGatewayUnavailable
		}
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}

	intent := &payment.Intent{
		ID:               uuid.NewString(),
		UserID:           params.UserID,
		Kind:             params.Kind,
		ItemID:           params.ItemID,
		AmountMinorUnits: it.amountMinorUnits,
		Currency:         it.currency,
		GatewaySessionID: sess.ID,
		Status:           payment.StatusPending,
	}
	// The pending record must exist before the user ever sees the
	// redirect URL; otherwise a fast webhook would arrive as an orphan.
	if err := s.intents.CreatePending(ctx, intent); err != nil {
		return nil, fmt.Errorf("recording pending intent: %w", err)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"intent_id", intent.ID,
		"kind", params.Kind,
		"item_id", params.ItemID,
		"amount_minor_units", it.amountMinorUnits)

	return &Result{IntentID: intent.ID, RedirectURL: sess.RedirectURL}, nil
}
