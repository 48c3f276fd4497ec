package order

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Canceler closes a pending order and frees its billing records.
type Canceler interface {
	Expire(ctx context.Context, orderID uuid.UUID) error
}

// Handler exposes guardian-facing order endpoints.
type Handler struct {
	Store    store.Store
	Canceler Canceler
}

type orderView struct {
	ID            string     `json:"id"`
	OrderNumber   string     `json:"orderNumber"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"paymentMethod"`
	TotalAmount   int64      `json:"totalAmount"`
	ChannelRef    string     `json:"channelRef,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
}

type itemView struct {
	BillingRecordID string `json:"billingRecordId"`
	StudentID       string `json:"studentId"`
	StudentName     string `json:"studentName"`
	Title           string `json:"title"`
	Category        string `json:"category"`
	Period          string `json:"period"`
	Amount          int64  `json:"amount"`
}

type studentShare struct {
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Subtotal    int64  `json:"subtotal"`
}

func toOrderView(ord store.Order) orderView {
	return orderView{
		ID:            ord.ID.String(),
		OrderNumber:   ord.OrderNumber,
		Status:        string(ord.Status),
		PaymentMethod: ord.PaymentMethod,
		TotalAmount:   ord.TotalAmount,
		ChannelRef:    ord.ChannelRef,
		CreatedAt:     ord.CreatedAt,
		ExpiresAt:     ord.ExpiresAt,
		ConfirmedAt:   ord.ConfirmedAt,
	}
}

func toItemViews(items []store.OrderItem) ([]itemView, []studentShare) {
	views := make([]itemView, 0, len(items))
	shares := make([]studentShare, 0, 2)
	index := map[uuid.UUID]int{}
	for _, it := range items {
		views = append(views, itemView{
			BillingRecordID: it.BillingRecordID.String(),
			StudentID:       it.StudentID.String(),
			StudentName:     it.StudentName,
			Title:           it.Title,
			Category:        string(it.Category),
			Period:          it.Period.String(),
			Amount:          it.Amount,
		})
		i, ok := index[it.StudentID]
		if !ok {
			index[it.StudentID] = len(shares)
			shares = append(shares, studentShare{StudentID: it.StudentID.String(), StudentName: it.StudentName})
			i = len(shares) - 1
		}
		shares[i].Subtotal += it.Amount
	}
	return views, shares
}

// List returns the caller's orders, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	guardianID, ok := common.GuardianID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage

	orders, total, err := h.Store.ListOrdersByGuardian(r.Context(), guardianID, perPage, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, ord := range orders {
		views = append(views, toOrderView(ord))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": views,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// Get returns one of the caller's orders with its line items and the
// per-student breakdown of the total.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
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
	ord, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil || ord.GuardianID != guardianID {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	items, err := h.Store.GetOrderItems(r.Context(), ord.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order items", nil)
		return
	}
	views, shares := toItemViews(items)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"order":    toOrderView(ord),
			"items":    views,
			"students": shares,
		},
	})
}

// Cancel closes one of the caller's pending orders and returns its billing
// records to the payable pool.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Canceler == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
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
	ord, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil || ord.GuardianID != guardianID {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	if ord.Status != store.OrderPending {
		common.JSONError(w, http.StatusBadRequest, "INVALID_STATE", "only pending orders can be cancelled", nil)
		return
	}
	if err := h.Canceler.Expire(r.Context(), ord.ID); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to cancel order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": string(store.OrderCancelled)}})
}
