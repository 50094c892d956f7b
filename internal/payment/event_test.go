package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

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

func signedEvent(t *testing.T, eventID, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	event := map[string]any{
		"id":          eventID,
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data": map[string]any{
			"object": object,
		},
	}
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return body, generateStripeSignature(body, testWebhookSecret, time.Now().Unix())
}

func TestVerifier_InvalidSignature(t *testing.T) {
	verifier := NewVerifier(testWebhookSecret)

	body, _ := signedEvent(t, "evt_1", "checkout.session.completed", map[string]any{"id": "cs_1"})

	_, err := verifier.VerifyAndParse(body, "t=1234567890,v1=invalidsignature")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifier_TamperedBody(t *testing.T) {
	verifier := NewVerifier(testWebhookSecret)

	body, sig := signedEvent(t, "evt_1", "checkout.session.completed", map[string]any{"id": "cs_1"})

	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] = 'x'

	_, err := verifier.VerifyAndParse(tampered, sig)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for tampered body, got %v", err)
	}
}

func TestVerifier_CompletedEvent(t *testing.T) {
	verifier := NewVerifier(testWebhookSecret)

	body, sig := signedEvent(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":             "cs_1",
		"payment_intent": map[string]any{"id": "pi_1"},
	})

	n, err := verifier.VerifyAndParse(body, sig)
	if err != nil {
		t.Fatalf("VerifyAndParse failed: %v", err)
	}
	if n.ID != "evt_1" {
		t.Errorf("expected event ID evt_1, got %s", n.ID)
	}

	completed, ok := n.Event.(Completed)
	if !ok {
		t.Fatalf("expected Completed, got %T", n.Event)
	}
	if completed.SessionID != "cs_1" {
		t.Errorf("expected session cs_1, got %s", completed.SessionID)
	}
	if completed.ChargeID != "pi_1" {
		t.Errorf("expected charge pi_1, got %s", completed.ChargeID)
	}
}

func TestVerifier_FailedEvent(t *testing.T) {
	verifier := NewVerifier(testWebhookSecret)

	body, sig := signedEvent(t, "evt_2", "payment_intent.payment_failed", map[string]any{
		"id": "pi_2",
		"metadata": map[string]any{
			"session_id": "cs_2",
		},
	})

	n, err := verifier.VerifyAndParse(body, sig)
	if err != nil {
		t.Fatalf("VerifyAndParse failed: %v", err)
	}

	failed, ok := n.Event.(Failed)
	if !ok {
		t.Fatalf("expected Failed, got %T", n.Event)
	}
	if failed.ChargeID != "pi_2" {
		t.Errorf("expected charge pi_2, got %s", failed.ChargeID)
	}
	if failed.SessionID != "cs_2" {
		t.Errorf("expected session cs_2, got %s", failed.SessionID)
	}
}

func TestVerifier_RefundedEvent(t *testing.T) {
	verifier := NewVerifier(testWebhookSecret)

	body, sig := signedEvent(t, "evt_3", "charge.refunded", map[string]any{
		"id":             "ch_3",
		"payment_intent": map[string]any{"id": "pi_3"},
	})

	n, err := verifier.VerifyAndParse(body, sig)
	if err != nil {
		t.Fatalf("VerifyAndParse failed: %v", err)
	}

	refunded, ok := n.Event.(Refunded)
	if !ok {
		t.Fatalf("expected Refunded, got %T", n.Event)
	}
	// The payment intent ID is preferred over the raw charge ID because
	// intents are indexed by it.
	if refunded.ChargeID != "pi_3" {
		t.Errorf("expected charge pi_3, got %s", refunded.ChargeID)
	}
}

func TestVerifier_UnrecognizedEvent(t *testing.T) {
	verifier := NewVerifier(testWebhookSecret)

	body, sig := signedEvent(t, "evt_4", "customer.subscription.created", map[string]any{"id": "sub_1"})

	n, err := verifier.VerifyAndParse(body, sig)
	if err != nil {
		t.Fatalf("VerifyAndParse failed: %v", err)
	}

	unrecognized, ok := n.Event.(Unrecognized)
	if !ok {
		t.Fatalf("expected Unrecognized, got %T", n.Event)
	}
	if unrecognized.Type != "customer.subscription.created" {
		t.Errorf("unexpected type %s", unrecognized.Type)
	}
}
