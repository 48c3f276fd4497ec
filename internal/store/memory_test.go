package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

func seedRecord(t *testing.T, m *store.Memory, guardianID uuid.UUID, amount int64) store.BillingRecord {
	t.Helper()
	rec, err := m.CreateBillingRecord(context.Background(), store.BillingRecord{
		StudentID:   uuid.New(),
		GuardianID:  guardianID,
		StudentName: "Ahmad",
		Title:       "SPP Januari 2024",
		Category:    store.CategoryTuition,
		Period:      store.Period{Month: 1, Year: 2024},
		BaseAmount:  amount,
		DueDate:     time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return rec
}

func TestCreateBillingRecordRejectsDuplicatePeriod(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	studentID := uuid.New()

	_, err := m.CreateBillingRecord(ctx, store.BillingRecord{
		StudentID:  studentID,
		GuardianID: uuid.New(),
		Category:   store.CategoryTuition,
		Period:     store.Period{Month: 3, Year: 2024},
		BaseAmount: 150000,
		DueDate:    time.Now(),
	})
	require.NoError(t, err)

	_, err = m.CreateBillingRecord(ctx, store.BillingRecord{
		StudentID:  studentID,
		GuardianID: uuid.New(),
		Category:   store.CategoryTuition,
		Period:     store.Period{Month: 3, Year: 2024},
		BaseAmount: 150000,
		DueDate:    time.Now(),
	})
	require.ErrorIs(t, err, store.ErrDuplicate)
}

func TestReserveBillingRecordsAllOrNothing(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	guardian := uuid.New()
	a := seedRecord(t, m, guardian, 150000)
	b := seedRecord(t, m, guardian, 100000)

	first := uuid.New()
	require.NoError(t, m.ReserveBillingRecords(ctx, first, []uuid.UUID{a.ID}))

	second := uuid.New()
	err := m.ReserveBillingRecords(ctx, second, []uuid.UUID{a.ID, b.ID})
	require.ErrorIs(t, err, store.ErrReservationConflict)

	// b must not be left half-reserved by the failed attempt.
	got, err := m.GetBillingRecord(ctx, b.ID)
	require.NoError(t, err)
	require.Nil(t, got.ReservedBy)
}

func TestReleaseRestoresStatusFromPaidAmount(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	guardian := uuid.New()
	rec := seedRecord(t, m, guardian, 200000)

	orderID := uuid.New()
	require.NoError(t, m.ReserveBillingRecords(ctx, orderID, []uuid.UUID{rec.ID}))

	got, err := m.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.NoError(t, m.SetRecordStatus(ctx, rec.ID, store.RecordPendingVerification, got.Version))

	require.NoError(t, m.ReleaseBillingRecords(ctx, orderID))

	got, err = m.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, store.RecordUnpaid, got.Status)
	require.Nil(t, got.ReservedBy)
}

func TestApplyPaymentChecksVersion(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	rec := seedRecord(t, m, uuid.New(), 150000)
	paidAt := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	err := m.ApplyPayment(ctx, store.ApplyPaymentParams{
		RecordID:        rec.ID,
		Amount:          150000,
		PaidAt:          paidAt,
		Status:          store.RecordPaid,
		ExpectedVersion: rec.Version + 5,
	})
	require.ErrorIs(t, err, store.ErrVersionConflict)

	err = m.ApplyPayment(ctx, store.ApplyPaymentParams{
		RecordID:        rec.ID,
		Amount:          150000,
		PaidAt:          paidAt,
		Status:          store.RecordPaid,
		ExpectedVersion: rec.Version,
	})
	require.NoError(t, err)

	got, err := m.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, store.RecordPaid, got.Status)
	require.Equal(t, int64(150000), got.PaidAmount)
	require.NotNil(t, got.PaidAt)
	require.Greater(t, got.Version, rec.Version)
}

func TestTransitionOrderIsConditional(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	ord, err := m.CreateOrder(ctx, store.Order{
		OrderNumber:   "ORD-20240105-0001",
		GuardianID:    uuid.New(),
		PaymentMethod: "va",
		TotalAmount:   150000,
		ExpiresAt:     time.Now().Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	ok, err := m.TransitionOrder(ctx, ord.ID, store.OrderPending, store.OrderPaid, &now)
	require.NoError(t, err)
	require.True(t, ok)

	// second delivery of the same settlement is a no-op
	ok, err = m.TransitionOrder(ctx, ord.ID, store.OrderPending, store.OrderPaid, &now)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := m.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.Equal(t, store.OrderPaid, got.Status)
	require.NotNil(t, got.ConfirmedAt)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	guardian := uuid.New()
	rec := seedRecord(t, m, guardian, 150000)

	errBoom := errors.New("boom")
	err := m.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.ReserveBillingRecords(ctx, uuid.New(), []uuid.UUID{rec.ID}); err != nil {
			return err
		}
		if _, err := tx.CreateOrder(ctx, store.Order{
			OrderNumber: "ORD-ROLLBACK",
			GuardianID:  guardian,
			TotalAmount: 150000,
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	got, err := m.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Nil(t, got.ReservedBy)

	orders, total, err := m.ListOrdersByGuardian(ctx, guardian, 10, 0)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, orders)
}

func TestOrderStatsWindowExcludesPending(t *testing.T) {
	m := store.NewMemory()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return base }
	ctx := context.Background()

	paid, err := m.CreateOrder(ctx, store.Order{
		OrderNumber:   "ORD-1",
		GuardianID:    uuid.New(),
		PaymentMethod: "va",
		TotalAmount:   150000,
		ExpiresAt:     base.Add(time.Hour),
	}, nil)
	require.NoError(t, err)
	now := base.Add(time.Minute)
	_, err = m.TransitionOrder(ctx, paid.ID, store.OrderPending, store.OrderPaid, &now)
	require.NoError(t, err)

	_, err = m.CreateOrder(ctx, store.Order{
		OrderNumber:   "ORD-2",
		GuardianID:    uuid.New(),
		PaymentMethod: "va",
		TotalAmount:   1000000,
		ExpiresAt:     base.Add(time.Hour),
	}, nil)
	require.NoError(t, err)

	stats, err := m.OrderStatsInWindow(ctx, base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.TotalCount)
	require.Equal(t, int64(1), stats.PaidCount)
	require.Equal(t, int64(150000), stats.Revenue)
}
