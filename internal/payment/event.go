// Package payment provides webhook verification and event decoding.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// ErrInvalidSignature is returned when the webhook signature does not
// match the raw body. This is the only verifier error that maps to a
// non-2xx response; the gateway retries on it.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrMalformedEvent is returned when a recognized event type carries a
// payload that cannot be decoded. Terminal: logged and acknowledged.
var ErrMalformedEvent = errors.New("malformed webhook event payload")

// Event is the closed set of gateway outcomes the fulfillment engine
// understands. Unknown shapes fall into Unrecognized rather than
// best-effort field access.
type Event interface {
	isEvent()
}

// Completed reports a settled checkout session.
type Completed struct {
	SessionID string
	ChargeID  string
}

// Failed reports a failed payment attempt. SessionID is set when the
// gateway included it; the engine falls back to the charge ID lookup
// otherwise.
type Failed struct {
	ChargeID  string
	SessionID string
}

// Refunded reports a refunded charge.
type Refunded struct {
	ChargeID string
}

// Unrecognized marks an event type the engine does not understand.
// It is acknowledged and ignored; the gateway must not retry it.
type Unrecognized struct {
	Type string
}

func (Completed) isEvent()    {}
func (Failed) isEvent()       {}
func (Refunded) isEvent()     {}
func (Unrecognized) isEvent() {}

// Notification is one verified webhook delivery: the gateway's event ID
// plus the decoded variant.
type Notification struct {
	ID    string
	Event Event
}

// Verifier authenticates raw webhook bodies against the shared endpoint
// secret and decodes them into the internal event variants.
type Verifier struct {
	secret string
}

// NewVerifier creates a Verifier for the given webhook endpoint secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// VerifyAndParse checks the signature over the raw (unparsed) body bytes
// and, on success, decodes the event. Parsing happens strictly after
// verification; a re-serialized body is never verified.
func (v *Verifier) VerifyAndParse(body []byte, signatureHeader string) (*Notification, error) {
	event, err := webhook.ConstructEvent(body, signatureHeader, v.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	decoded, err := decodeEvent(event)
	if err != nil {
		return nil, err
	}

	return &Notification{ID: event.ID, Event: decoded}, nil
}

// decodeEvent maps a verified gateway event onto the closed variant set.
func decodeEvent(event stripe.Event) (Event, error) {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", ErrMalformedEvent, err)
		}
		completed := Completed{SessionID: sess.ID}
		if sess.PaymentIntent != nil {
			completed.ChargeID = sess.PaymentIntent.ID
		}
		return completed, nil

	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: payment intent: %v", ErrMalformedEvent, err)
		}
		failed := Failed{ChargeID: pi.ID}
		if pi.Metadata != nil {
			failed.SessionID = pi.Metadata["session_id"]
		}
		return failed, nil

	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("%w: charge: %v", ErrMalformedEvent, err)
		}
		refunded := Refunded{ChargeID: charge.ID}
		if charge.PaymentIntent != nil {
			refunded.ChargeID = charge.PaymentIntent.ID
		}
		return refunded, nil
	}

	return Unrecognized{Type: string(event.Type)}, nil
}
