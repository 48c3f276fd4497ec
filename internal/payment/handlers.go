package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/events"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Handler exposes the manual bank-transfer path: guardians submit transfer
// proof, admins verify or reject it through the same reconciliation contract
// the channel webhooks use.
type Handler struct {
	Svc    *Service
	Events *events.Bus
}

type proofRequest struct {
	Note string `json:"note"`
}

// SubmitProof records the guardian's transfer note on their pending manual
// order.
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil || h.Svc.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	guardianID, ok := common.GuardianID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req proofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid json body", nil)
		return
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "note is required", nil)
		return
	}
	ord, err := h.Svc.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load order", nil)
		return
	}
	if ord.GuardianID != guardianID {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
		return
	}
	if ord.Status != store.OrderPending {
		common.JSONError(w, http.StatusConflict, "ORDER_CLOSED", "order no longer accepts proof", nil)
		return
	}
	if err := h.Svc.Store.SetOrderProofNote(r.Context(), orderID, note); err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to save proof", nil)
		return
	}
	if h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), events.TopicProofSubmitted, orderID, map[string]any{
			"orderId":    orderID.String(),
			"guardianId": guardianID.String(),
		})
	}
	common.JSON(w, http.StatusAccepted, map[string]any{
		"data": map[string]any{
			"orderId": orderID.String(),
			"status":  "payment not verified yet",
		},
	})
}

// AdminVerify approves a manual transfer: it settles the order through the
// same idempotent confirm contract the webhooks use.
func (h *Handler) AdminVerify(w http.ResponseWriter, r *http.Request) {
	h.adminClose(w, r, true)
}

// AdminReject declines a manual transfer, failing the order and releasing the
// reserved billing records.
func (h *Handler) AdminReject(w http.ResponseWriter, r *http.Request) {
	h.adminClose(w, r, false)
}

func (h *Handler) adminClose(w http.ResponseWriter, r *http.Request, approve bool) {
	if h == nil || h.Svc == nil || h.Svc.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	if !common.IsAdmin(r.Context()) {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin role required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	ord, err := h.Svc.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load order", nil)
		return
	}
	if approve {
		err = h.Svc.Confirm(r.Context(), orderID, ord.TotalAmount, "admin")
	} else {
		err = h.Svc.Fail(r.Context(), orderID, "admin rejected transfer proof", "admin")
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderClosed):
			common.JSONError(w, http.StatusConflict, "ORDER_CLOSED", err.Error(), nil)
		case errors.Is(err, ErrInvalidAmount):
			common.JSONError(w, http.StatusUnprocessableEntity, common.CodeInvalidAmount, err.Error(), nil)
		default:
			common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "settlement failed", nil)
		}
		return
	}
	status := store.OrderPaid
	if !approve {
		status = store.OrderFailed
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"orderId": orderID.String(),
			"status":  string(status),
		},
	})
}
