package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/analytics"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

func seedOrder(t *testing.T, mem *store.Memory, status store.OrderStatus, method string, amount int64, createdAt time.Time, items ...store.OrderItem) store.Order {
	t.Helper()
	ord, err := mem.CreateOrder(context.Background(), store.Order{
		OrderNumber:   "T-" + uuid.NewString()[:8],
		GuardianID:    uuid.New(),
		Status:        status,
		PaymentMethod: method,
		TotalAmount:   amount,
		CreatedAt:     createdAt,
	}, items)
	require.NoError(t, err)
	return ord
}

func TestSummarizeCountsPaidOrdersOnly(t *testing.T) {
	mem := store.NewMemory()
	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	seedOrder(t, mem, store.OrderPaid, "va", 50000, day)
	seedOrder(t, mem, store.OrderPaid, "va", 70000, day.Add(time.Hour))
	seedOrder(t, mem, store.OrderPaid, "manual", 30000, day.Add(2*time.Hour))
	seedOrder(t, mem, store.OrderPending, "va", 1000000, day.Add(3*time.Hour))

	svc := &analytics.Service{Store: mem}
	out, err := svc.Summarize(context.Background(), day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.Equal(t, int64(150000), out.Overview.Revenue)
	require.Equal(t, int64(4), out.Overview.TotalOrders)
	require.Equal(t, int64(3), out.Overview.PaidOrders)
	require.InDelta(t, 0.75, out.Overview.SuccessRate, 1e-9)
	require.Equal(t, int64(50000), out.Overview.AvgTransaction)
}

func TestSummarizeGrowthAgainstPrecedingWindow(t *testing.T) {
	mem := store.NewMemory()
	// previous window: 100000, current window: 150000
	seedOrder(t, mem, store.OrderPaid, "va", 100000, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	seedOrder(t, mem, store.OrderPaid, "va", 150000, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	svc := &analytics.Service{Store: mem}
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	out, err := svc.Summarize(context.Background(), from, to)
	require.NoError(t, err)
	require.InDelta(t, 50.0, out.Overview.GrowthPercent, 1e-9)
}

func TestSummarizeMethodShares(t *testing.T) {
	mem := store.NewMemory()
	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	seedOrder(t, mem, store.OrderPaid, "va", 75000, day)
	seedOrder(t, mem, store.OrderPaid, "manual", 25000, day)
	seedOrder(t, mem, store.OrderFailed, "manual", 40000, day)

	svc := &analytics.Service{Store: mem}
	out, err := svc.Summarize(context.Background(), day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.Len(t, out.Methods, 2)
	require.Equal(t, "va", out.Methods[0].Method)
	require.InDelta(t, 0.75, out.Methods[0].RevenueShare, 1e-9)
	require.Equal(t, "manual", out.Methods[1].Method)
	require.InDelta(t, 0.5, out.Methods[1].SuccessRate, 1e-9)
}

func TestSummarizeCategoryAndTopPayers(t *testing.T) {
	mem := store.NewMemory()
	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ahmad, fatimah := uuid.New(), uuid.New()
	seedOrder(t, mem, store.OrderPaid, "va", 250000, day,
		store.OrderItem{StudentID: ahmad, StudentName: "Ahmad", Category: store.CategoryTuition, Amount: 150000},
		store.OrderItem{StudentID: fatimah, StudentName: "Fatimah", Category: store.CategoryTuition, Amount: 50000},
		store.OrderItem{StudentID: fatimah, StudentName: "Fatimah", Category: store.CategoryDonation, Amount: 50000},
	)

	svc := &analytics.Service{Store: mem, TopN: 1}
	out, err := svc.Summarize(context.Background(), day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	require.NoError(t, err)

	require.Len(t, out.Categories, 2)
	require.Equal(t, store.CategoryTuition, out.Categories[0].Category)
	require.Equal(t, int64(200000), out.Categories[0].Revenue)

	require.Len(t, out.TopPayers, 1)
	require.Equal(t, "Ahmad", out.TopPayers[0].StudentName)
	require.Equal(t, int64(150000), out.TopPayers[0].TotalPaid)
}

func TestSummarizeDailySeriesIsDense(t *testing.T) {
	mem := store.NewMemory()
	seedOrder(t, mem, store.OrderPaid, "va", 50000, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))
	seedOrder(t, mem, store.OrderPaid, "va", 30000, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))

	svc := &analytics.Service{Store: mem}
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	out, err := svc.Summarize(context.Background(), from, to)
	require.NoError(t, err)

	require.Len(t, out.Daily, 5)
	require.Equal(t, "2024-03-01", out.Daily[0].Date)
	require.Zero(t, out.Daily[0].Revenue)
	require.Equal(t, int64(50000), out.Daily[1].Revenue)
	require.Zero(t, out.Daily[2].Revenue)
	require.Equal(t, int64(30000), out.Daily[3].Revenue)
	require.Zero(t, out.Daily[4].Revenue)
}

func TestSummarizeUsesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	mem := store.NewMemory()
	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	seedOrder(t, mem, store.OrderPaid, "va", 50000, day)

	svc := &analytics.Service{Store: mem, R: rdb, TTL: time.Minute}
	from, to := day.AddDate(0, 0, -1), day.AddDate(0, 0, 1)
	first, err := svc.Summarize(context.Background(), from, to)
	require.NoError(t, err)

	// a later write does not show up until the cache expires
	seedOrder(t, mem, store.OrderPaid, "va", 999999, day)
	second, err := svc.Summarize(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, first.Overview.Revenue, second.Overview.Revenue)
}
