package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/cart"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

func newService(t *testing.T, now time.Time) (*cart.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.Now = func() time.Time { return now }
	svc := &cart.Service{
		Store: mem,
		Rule:  policy.Rule{Kind: policy.KindFlat, Amount: 10000},
		TTL:   time.Hour,
		Now:   func() time.Time { return now },
	}
	return svc, mem
}

func addRecord(t *testing.T, mem *store.Memory, guardianID uuid.UUID, name string, amount int64, due time.Time) store.BillingRecord {
	t.Helper()
	rec, err := mem.CreateBillingRecord(context.Background(), store.BillingRecord{
		StudentID:   uuid.New(),
		GuardianID:  guardianID,
		StudentName: name,
		Title:       "SPP",
		Category:    store.CategoryTuition,
		Period:      store.Period{Month: 1, Year: 2024},
		BaseAmount:  amount,
		DueDate:     due,
	})
	require.NoError(t, err)
	return rec
}

func TestAddThenRemoveLeavesEmptyCart(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc, mem := newService(t, now)
	ctx := context.Background()
	guardian := uuid.New()
	rec := addRecord(t, mem, guardian, "Ahmad", 150000, now.AddDate(0, 0, 5))

	require.NoError(t, svc.AddItem(ctx, guardian, rec.ID))
	require.NoError(t, svc.RemoveItem(ctx, guardian, rec.ID))

	summary, err := svc.Summarize(ctx, guardian)
	require.NoError(t, err)
	require.Empty(t, summary.Lines)
	require.Zero(t, summary.Total)
}

func TestAddItemRejectsPaidRecord(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc, mem := newService(t, now)
	ctx := context.Background()
	guardian := uuid.New()
	rec := addRecord(t, mem, guardian, "Ahmad", 150000, now.AddDate(0, 0, 5))

	require.NoError(t, mem.ApplyPayment(ctx, store.ApplyPaymentParams{
		RecordID:        rec.ID,
		Amount:          150000,
		PaidAt:          now,
		Status:          store.RecordPaid,
		ExpectedVersion: rec.Version,
	}))

	err := svc.AddItem(ctx, guardian, rec.ID)
	require.ErrorIs(t, err, cart.ErrAlreadyPaid)
}

func TestAddItemIsIdempotentAndRefreshesSnapshot(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc, mem := newService(t, now)
	ctx := context.Background()
	guardian := uuid.New()
	rec := addRecord(t, mem, guardian, "Ahmad", 150000, now.AddDate(0, 0, 5))

	require.NoError(t, svc.AddItem(ctx, guardian, rec.ID))
	require.NoError(t, svc.AddItem(ctx, guardian, rec.ID))

	summary, err := svc.Summarize(ctx, guardian)
	require.NoError(t, err)
	require.Len(t, summary.Lines, 1)
	require.Equal(t, int64(150000), summary.Total)
}

func TestSummaryFlagsStaleWhenFineAccrues(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc, mem := newService(t, now)
	ctx := context.Background()
	guardian := uuid.New()
	rec := addRecord(t, mem, guardian, "Ahmad", 100000, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC))

	require.NoError(t, svc.AddItem(ctx, guardian, rec.ID))

	// move past the due date so the flat fine kicks in
	later := time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return later }

	summary, err := svc.Summarize(ctx, guardian)
	require.NoError(t, err)
	require.True(t, summary.Stale)
	require.Equal(t, int64(100000), summary.Lines[0].SnapshotAmount)
	require.Equal(t, int64(110000), summary.Lines[0].CurrentAmount)

	refreshed, err := svc.RefreshSnapshots(ctx, guardian)
	require.NoError(t, err)
	require.False(t, refreshed.Stale)
	require.Equal(t, int64(110000), refreshed.Total)
}

func TestSummaryPreservesPerStudentAttribution(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc, mem := newService(t, now)
	ctx := context.Background()
	guardian := uuid.New()
	due := now.AddDate(0, 0, 5)
	r1 := addRecord(t, mem, guardian, "Ahmad", 150000, due)
	r2 := addRecord(t, mem, guardian, "Fatimah", 100000, due)

	require.NoError(t, svc.AddItem(ctx, guardian, r1.ID))
	require.NoError(t, svc.AddItem(ctx, guardian, r2.ID))

	summary, err := svc.Summarize(ctx, guardian)
	require.NoError(t, err)
	require.Equal(t, int64(250000), summary.Total)
	require.Len(t, summary.Students, 2)
	names := map[string]int64{}
	for _, st := range summary.Students {
		names[st.StudentName] = st.Subtotal
	}
	require.Equal(t, int64(150000), names["Ahmad"])
	require.Equal(t, int64(100000), names["Fatimah"])
}

func TestSummaryMarksDeletedRecordInvalid(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	svc, mem := newService(t, now)
	ctx := context.Background()
	guardian := uuid.New()
	due := now.AddDate(0, 0, 5)
	rec := addRecord(t, mem, guardian, "Ahmad", 150000, due)
	require.NoError(t, svc.AddItem(ctx, guardian, rec.ID))

	got, err := mem.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.NoError(t, mem.SetRecordStatus(ctx, rec.ID, store.RecordCancelled, got.Version))

	summary, err := svc.Summarize(ctx, guardian)
	require.NoError(t, err)
	require.Len(t, summary.Lines, 1)
	require.True(t, summary.Lines[0].Invalid)
	require.Zero(t, summary.Total)
}
