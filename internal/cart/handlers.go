package cart

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Handler wires the cart service to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type addItemRequest struct {
	BillingRecordID string `json:"billingRecordId" validate:"required,uuid4"`
}

// Get returns the guardian's cart summary. A guardian without a cart gets an
// empty summary rather than a 404.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	guardianID, ok := common.GuardianID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	summary, err := h.Svc.Summarize(r.Context(), guardianID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSON(w, http.StatusOK, map[string]any{"data": Summary{Lines: []Line{}}})
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load cart", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

// AddItem adds a billing record to the cart with a snapshot of its current
// outstanding amount.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	guardianID, ok := common.GuardianID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request", map[string]any{"error": err.Error()})
			return
		}
	}
	recordID, err := uuid.Parse(payload.BillingRecordID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid billing record id", nil)
		return
	}
	if err := h.Svc.AddItem(r.Context(), guardianID, recordID); err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.Svc.Summarize(r.Context(), guardianID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load cart", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

// RemoveItem removes a billing record from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	guardianID, ok := common.GuardianID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	recordID, err := uuid.Parse(chi.URLParam(r, "recordId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid billing record id", nil)
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), guardianID, recordID); err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.Svc.Summarize(r.Context(), guardianID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load cart", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		common.JSONError(w, http.StatusConflict, common.CodeAlreadyPaid, "billing record is already paid", nil)
	case errors.Is(err, store.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "billing record not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart operation failed", nil)
	}
}
