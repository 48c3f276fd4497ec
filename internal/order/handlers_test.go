package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

type stubCanceler struct {
	expired []uuid.UUID
	store   *store.Memory
}

func (c *stubCanceler) Expire(ctx context.Context, orderID uuid.UUID) error {
	c.expired = append(c.expired, orderID)
	_, err := c.store.TransitionOrder(ctx, orderID, store.OrderPending, store.OrderCancelled, nil)
	return err
}

func seedOrder(t *testing.T, mem *store.Memory, guardianID uuid.UUID, status store.OrderStatus, createdAt time.Time) store.Order {
	t.Helper()
	studentID := uuid.New()
	ord, err := mem.CreateOrder(context.Background(), store.Order{
		ID:            uuid.New(),
		OrderNumber:   "TPQ-" + uuid.NewString()[:8],
		GuardianID:    guardianID,
		Status:        status,
		PaymentMethod: "va",
		TotalAmount:   300000,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(24 * time.Hour),
	}, []store.OrderItem{
		{
			ID:              uuid.New(),
			BillingRecordID: uuid.New(),
			StudentID:       studentID,
			StudentName:     "Ahmad",
			Title:           "SPP Januari 2024",
			Category:        store.CategoryTuition,
			Period:          store.Period{Month: 1, Year: 2024},
			Amount:          150000,
		},
		{
			ID:              uuid.New(),
			BillingRecordID: uuid.New(),
			StudentID:       studentID,
			StudentName:     "Ahmad",
			Title:           "SPP Februari 2024",
			Category:        store.CategoryTuition,
			Period:          store.Period{Month: 2, Year: 2024},
			Amount:          150000,
		},
	})
	require.NoError(t, err)
	return ord
}

func doRequest(h http.HandlerFunc, method, target, param, value string, guardianID uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	ctx := common.WithGuardianID(req.Context(), guardianID)
	if param != "" {
		rc := chi.NewRouteContext()
		rc.URLParams.Add(param, value)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	rec := httptest.NewRecorder()
	h(rec, req.WithContext(ctx))
	return rec
}

func TestListReturnsOnlyCallersOrders(t *testing.T) {
	mem := store.NewMemory()
	guardianID := uuid.New()
	otherID := uuid.New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	seedOrder(t, mem, guardianID, store.OrderPaid, base)
	mine := seedOrder(t, mem, guardianID, store.OrderPending, base.Add(time.Hour))
	seedOrder(t, mem, otherID, store.OrderPaid, base)

	h := &Handler{Store: mem}
	rec := doRequest(h.List, http.MethodGet, "/orders", "", "", guardianID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	var body struct {
		Data []orderView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, mine.ID.String(), body.Data[0].ID)
}

func TestGetHidesForeignOrders(t *testing.T) {
	mem := store.NewMemory()
	owner := uuid.New()
	ord := seedOrder(t, mem, owner, store.OrderPaid, time.Now())

	h := &Handler{Store: mem}
	rec := doRequest(h.Get, http.MethodGet, "/orders/"+ord.ID.String(), "orderId", ord.ID.String(), uuid.New())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBreaksTotalDownPerStudent(t *testing.T) {
	mem := store.NewMemory()
	owner := uuid.New()
	ord := seedOrder(t, mem, owner, store.OrderPaid, time.Now())

	h := &Handler{Store: mem}
	rec := doRequest(h.Get, http.MethodGet, "/orders/"+ord.ID.String(), "orderId", ord.ID.String(), owner)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Order    orderView      `json:"order"`
			Items    []itemView     `json:"items"`
			Students []studentShare `json:"students"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Items, 2)
	require.Len(t, body.Data.Students, 1)
	require.Equal(t, "Ahmad", body.Data.Students[0].StudentName)
	require.Equal(t, int64(300000), body.Data.Students[0].Subtotal)
}

func TestCancelClosesPendingOrder(t *testing.T) {
	mem := store.NewMemory()
	owner := uuid.New()
	ord := seedOrder(t, mem, owner, store.OrderPending, time.Now())

	canceler := &stubCanceler{store: mem}
	h := &Handler{Store: mem, Canceler: canceler}
	rec := doRequest(h.Cancel, http.MethodPost, "/orders/"+ord.ID.String()+"/cancel", "orderId", ord.ID.String(), owner)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []uuid.UUID{ord.ID}, canceler.expired)

	got, err := mem.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	require.Equal(t, store.OrderCancelled, got.Status)
}

func TestCancelRejectsSettledOrder(t *testing.T) {
	mem := store.NewMemory()
	owner := uuid.New()
	ord := seedOrder(t, mem, owner, store.OrderPaid, time.Now())

	canceler := &stubCanceler{store: mem}
	h := &Handler{Store: mem, Canceler: canceler}
	rec := doRequest(h.Cancel, http.MethodPost, "/orders/"+ord.ID.String()+"/cancel", "orderId", ord.ID.String(), owner)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, canceler.expired)
}
