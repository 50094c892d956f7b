package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/classfair/classfair/internal/catalog"
	"github.com/classfair/classfair/internal/checkout"
	"github.com/classfair/classfair/internal/middleware"
	"github.com/classfair/classfair/internal/registration"
	"github.com/classfair/classfair/internal/validate"
)

// CheckoutHandlers holds dependencies for checkout-related HTTP handlers.
type CheckoutHandlers struct {
	service *checkout.Service
}

// NewCheckoutHandlers creates a new CheckoutHandlers instance.
func NewCheckoutHandlers(service *checkout.Service) *CheckoutHandlers {
	return &CheckoutHandlers{service: service}
}

// checkoutRequest is the request body for POST /checkout. The client
// names the item only; the price always comes from the catalog.
type checkoutRequest struct {
	Kind   string `json:"kind"`
	ItemID string `json:"item_id"`
}

// HandleCheckout starts a purchase for the authenticated user.
// POST /checkout
func (h *CheckoutHandlers) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)
	if userID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "authentication required")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	itemID, err := validate.ItemID(req.ItemID)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "item_id is missing or malformed")
		return
	}
	if req.Kind != catalog.KindCourse && req.Kind != catalog.KindEvent {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "kind must be \"course\" or \"event\"")
		return
	}

	result, err := h.service.Begin(ctx, checkout.BeginParams{
		UserID: userID,
		Kind:   req.Kind,
		ItemID: itemID,
	})
	if err != nil {
		h.writeBeginError(w, r, err)
		return
	}

	WriteJSON(w, ctx, http.StatusOK, result)
}

func (h *CheckoutHandlers) writeBeginError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var code string
	switch {
	case errors.Is(err, checkout.ErrItemNotFound):
		code = ErrCodeItemNotFound
	case errors.Is(err, checkout.ErrAlreadyGranted):
		code = ErrCodeAlreadyGranted
	case errors.Is(err, registration.ErrCapacityExhausted):
		code = ErrCodeCapacityExhausted
	case errors.Is(err, checkout.ErrGatewayUnavailable):
		code = ErrCodeGatewayUnavailable
	default:
		slog.ErrorContext(ctx, "checkout failed", "error", err)
		code = ErrCodeInternal
	}

	ctx = middleware.SetErrorCode(ctx, code)
	WriteError(w, ctx, StatusCodeMapping(code), code, beginErrorMessage(code))
}

func beginErrorMessage(code string) string {
	switch code {
	case ErrCodeItemNotFound:
		return "item not found"
	case ErrCodeAlreadyGranted:
		return "access already granted"
	case ErrCodeCapacityExhausted:
		return "event is full"
	case ErrCodeGatewayUnavailable:
		return "payment gateway unavailable, try again"
	default:
		return "checkout could not be started"
	}
}
