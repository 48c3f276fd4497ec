package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
)

// Handler wires the checkout service to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type checkoutRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"required"`
}

// Checkout converts the guardian's cart into a pending order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	guardianID, ok := common.GuardianID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "paymentMethod is required", nil)
			return
		}
	}
	out, err := h.Svc.Checkout(r.Context(), guardianID, payload.PaymentMethod)
	if err != nil {
		h.writeError(w, out, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *Handler) writeError(w http.ResponseWriter, out Output, err error) {
	var stale *StaleCartError
	switch {
	case errors.As(err, &stale):
		common.JSONError(w, http.StatusConflict, common.CodeStaleCart,
			"cart amounts changed since selection, please re-confirm", stale.Summary)
	case errors.Is(err, ErrReservationConflict):
		common.JSONError(w, http.StatusConflict, common.CodeReservationConflict,
			"one of the items was just paid by another order", nil)
	case errors.Is(err, ErrCartEmpty):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "cart is empty", nil)
	case errors.Is(err, ErrChannelTimeout):
		// the order exists and stays pending, tell the caller to poll
		common.JSON(w, http.StatusAccepted, map[string]any{
			"data":    out,
			"warning": "payment channel did not respond in time, order is pending",
		})
	case errors.Is(err, ErrChannelRejected):
		common.JSONError(w, http.StatusBadGateway, common.CodeChannelRejected,
			"payment channel rejected the order", nil)
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	}
}
