package order

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// AdminHandler provides administrative order listings.
type AdminHandler struct {
	Store store.Store
}

// List returns orders across all guardians, filtered by status and payment
// method. Manual transfers awaiting verification are the common filter here.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	if !common.IsAdmin(r.Context()) {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
		return
	}
	q := r.URL.Query()
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	filter := store.OrderFilter{
		Status: store.OrderStatus(q.Get("status")),
		Method: q.Get("method"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	orders, total, err := h.Store.ListOrders(r.Context(), filter)
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

// Get returns any order with its items, without the ownership restriction of
// the guardian endpoint.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	if !common.IsAdmin(r.Context()) {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	ord, err := h.Store.GetOrder(r.Context(), orderID)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	items, err := h.Store.GetOrderItems(r.Context(), ord.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order items", nil)
		return
	}
	views, shares := toItemViews(items)
	body := map[string]any{
		"order":    toOrderView(ord),
		"items":    views,
		"students": shares,
	}
	if ord.ProofNote != "" {
		body["proofNote"] = ord.ProofNote
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": body})
}
