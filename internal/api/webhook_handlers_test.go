package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/classfair/classfair/internal/audit"
	"github.com/classfair/classfair/internal/catalog"
	"github.com/classfair/classfair/internal/enrollment"
	"github.com/classfair/classfair/internal/fulfillment"
	"github.com/classfair/classfair/internal/payment"
	"github.com/classfair/classfair/internal/registration"
	"github.com/stripe/stripe-go/v81"
)

const testWebhookSecret = "whsec_test_secret"

// generateStripeSignature generates a valid Stripe webhook signature for testing.
func generateStripeSignature(payload []byte, secret string, timestamp int64) string {
	// Stripe signature format: t=timestamp,v1=signature
	signedPayload := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}

type webhookTestEnv struct {
	handlers    *WebhookHandlers
	intents     *payment.InMemoryIntentRepository
	enrollments *enrollment.InMemoryRepository
	deliveries  *payment.InMemoryWebhookRepository
}

func newWebhookTestEnv(t *testing.T) *webhookTestEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	intents := payment.NewInMemoryIntentRepository()
	enrollments := enrollment.NewInMemoryRepository()
	counters := registration.NewInMemoryCounterStore()
	registrar := registration.NewRegistrar(registration.NewInMemoryRepository(), counters, logger)
	emitter := audit.NewEmitter(audit.NewInMemoryRepository(), logger)
	engine := fulfillment.NewEngine(intents, enrollments, registrar, emitter, nil, nil, logger)
	deliveries := payment.NewInMemoryWebhookRepository()

	return &webhookTestEnv{
		handlers:    NewWebhookHandlers(payment.NewVerifier(testWebhookSecret), deliveries, engine),
		intents:     intents,
		enrollments: enrollments,
		deliveries:  deliveries,
	}
}

func (env *webhookTestEnv) seedPendingIntent(t *testing.T, sessionID string) *payment.Intent {
	t.Helper()

	intent := &payment.Intent{
		ID:               "int-1",
		UserID:           "user-1",
		Kind:             catalog.KindCourse,
		ItemID:           "course-1",
		AmountMinorUnits: 4900,
		Currency:         "usd",
		GatewaySessionID: sessionID,
		Status:           payment.StatusPending,
	}
	if err := env.intents.CreatePending(context.Background(), intent); err != nil {
		t.Fatalf("CreatePending failed: %v", err)
	}
	return intent
}

func webhookBody(t *testing.T, eventID, eventType string, object map[string]any) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"id":          eventID,
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return body
}

func postWebhook(env *webhookTestEnv, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	env.handlers.HandleStripeWebhook(rec, req)
	return rec
}

func TestHandleStripeWebhook_CompletedSession(t *testing.T) {
	env := newWebhookTestEnv(t)
	env.seedPendingIntent(t, "cs_1")

	body := webhookBody(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":             "cs_1",
		"payment_intent": map[string]any{"id": "pi_1"},
	})
	rec := postWebhook(env, body, generateStripeSignature(body, testWebhookSecret, time.Now().Unix()))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	intent, err := env.intents.GetBySessionID(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("GetBySessionID failed: %v", err)
	}
	if intent.Status != payment.StatusCompleted {
		t.Errorf("expected status completed, got %s", intent.Status)
	}
	if _, err := env.enrollments.GetActive(context.Background(), "user-1", "course-1"); err != nil {
		t.Errorf("expected enrollment after webhook: %v", err)
	}
}

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	env := newWebhookTestEnv(t)
	env.seedPendingIntent(t, "cs_1")

	body := webhookBody(t, "evt_1", "checkout.session.completed", map[string]any{"id": "cs_1"})
	rec := postWebhook(env, body, "t=1234567890,v1=invalidsignature")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad signature, got %d", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error.Code != ErrCodeInvalidSignature {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidSignature, resp.Error.Code)
	}

	// A rejected delivery must not have touched any state.
	intent, err := env.intents.GetBySessionID(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("GetBySessionID failed: %v", err)
	}
	if intent.Status != payment.StatusPending {
		t.Errorf("rejected webhook changed intent status to %s", intent.Status)
	}
}

func TestHandleStripeWebhook_DuplicateDelivery(t *testing.T) {
	env := newWebhookTestEnv(t)
	env.seedPendingIntent(t, "cs_1")

	body := webhookBody(t, "evt_1", "checkout.session.completed", map[string]any{"id": "cs_1"})
	sig := generateStripeSignature(body, testWebhookSecret, time.Now().Unix())

	for i := 0; i < 2; i++ {
		if rec := postWebhook(env, body, sig); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
		}
	}

	processed, err := env.deliveries.HasProcessed(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("HasProcessed failed: %v", err)
	}
	if !processed {
		t.Error("expected delivery to be recorded")
	}
}

// TestHandleStripeWebhook_OrphanAcknowledged: events for unknown
// sessions are answered 200 so the gateway stops retrying them.
func TestHandleStripeWebhook_OrphanAcknowledged(t *testing.T) {
	env := newWebhookTestEnv(t)

	body := webhookBody(t, "evt_1", "checkout.session.completed", map[string]any{"id": "cs_unknown"})
	rec := postWebhook(env, body, generateStripeSignature(body, testWebhookSecret, time.Now().Unix()))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for orphan event, got %d", rec.Code)
	}
}

func TestHandleStripeWebhook_UnrecognizedType(t *testing.T) {
	env := newWebhookTestEnv(t)

	body := webhookBody(t, "evt_1", "customer.created", map[string]any{"id": "cus_1"})
	rec := postWebhook(env, body, generateStripeSignature(body, testWebhookSecret, time.Now().Unix()))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for unrecognized event type, got %d", rec.Code)
	}
}

func TestHandleStripeWebhook_RefundFlow(t *testing.T) {
	env := newWebhookTestEnv(t)
	env.seedPendingIntent(t, "cs_1")

	completed := webhookBody(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":             "cs_1",
		"payment_intent": map[string]any{"id": "pi_1"},
	})
	if rec := postWebhook(env, completed, generateStripeSignature(completed, testWebhookSecret, time.Now().Unix())); rec.Code != http.StatusOK {
		t.Fatalf("completed delivery: expected 200, got %d", rec.Code)
	}

	refunded := webhookBody(t, "evt_2", "charge.refunded", map[string]any{
		"id":             "ch_1",
		"payment_intent": map[string]any{"id": "pi_1"},
	})
	if rec := postWebhook(env, refunded, generateStripeSignature(refunded, testWebhookSecret, time.Now().Unix())); rec.Code != http.StatusOK {
		t.Fatalf("refund delivery: expected 200, got %d", rec.Code)
	}

	intent, err := env.intents.GetBySessionID(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("GetBySessionID failed: %v", err)
	}
	if intent.Status != payment.StatusRefunded {
		t.Errorf("expected status refunded, got %s", intent.Status)
	}
	// The grant survives the refund.
	if _, err := env.enrollments.GetActive(context.Background(), "user-1", "course-1"); err != nil {
		t.Errorf("expected enrollment to survive refund: %v", err)
	}
}
