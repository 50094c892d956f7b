// Package payment provides Stripe integration for hosted checkout sessions.
package payment

import (
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// Metadata keys attached to every checkout session. The webhook side
// never trusts these for money amounts; they only carry routing info.
const (
	MetadataUserID = "user_id"
	MetadataKind   = "kind"
	MetadataItemID = "item_id"
)

// CheckoutSessionParams represents parameters for creating a Checkout Session.
// AmountMinorUnits is always the server-side canonical price; client-supplied
// amounts are never accepted.
type CheckoutSessionParams struct {
	AmountMinorUnits int64
	Currency         string
	ItemName         string
	UserID           string
	Kind             string
	ItemID           string
	SuccessURL       string
	CancelURL        string
}

// CheckoutSession is the subset of the gateway response the core consumes.
type CheckoutSession struct {
	ID          string
	RedirectURL string
}

// Client is an interface for Stripe operations to enable testing with mocks.
type Client interface {
	CreateCheckoutSession(params *CheckoutSessionParams) (*CheckoutSession, error)
}

// StripeClient implements the Client interface using the real Stripe SDK.
type StripeClient struct{}

// NewStripeClient creates a new Stripe client with the given API key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// CreateCheckoutSession creates a Stripe Checkout Session priced with
// ad-hoc price data and tagged with the purchase metadata bundle.
func (c *StripeClient) CreateCheckoutSession(params *CheckoutSessionParams) (*CheckoutSession, error) {
	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.AmountMinorUnits),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.ItemName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		Metadata: map[string]string{
			MetadataUserID: params.UserID,
			MetadataKind:   params.Kind,
			MetadataItemID: params.ItemID,
		},
	}

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{ID: sess.ID, RedirectURL: sess.URL}, nil
}

// IsGatewayUnavailable reports whether an error from the Stripe SDK is a
// transient infrastructure failure (network error or 5xx) that the caller
// may retry, as opposed to a terminal rejection.
func IsGatewayUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	// Anything that never produced a gateway response (DNS, timeout, reset)
	// is retryable.
	return true
}
