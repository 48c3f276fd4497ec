package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/payment"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

type fixture struct {
	mem *store.Memory
	svc *payment.Service
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	mem := store.NewMemory()
	mem.Now = func() time.Time { return now }
	return &fixture{
		mem: mem,
		svc: &payment.Service{
			Store: mem,
			Rule:  policy.Rule{Kind: policy.KindFlat, Amount: 10000},
			Now:   func() time.Time { return now },
		},
		now: now,
	}
}

// pendingOrder seeds a record, reserves it, and creates a PENDING order for
// the full outstanding amount.
func (f *fixture) pendingOrder(t *testing.T, amount int64) (store.Order, store.BillingRecord) {
	t.Helper()
	ctx := context.Background()
	guardian := uuid.New()
	rec, err := f.mem.CreateBillingRecord(ctx, store.BillingRecord{
		StudentID:   uuid.New(),
		GuardianID:  guardian,
		StudentName: "Ahmad",
		Title:       "SPP Januari 2024",
		Category:    store.CategoryTuition,
		Period:      store.Period{Month: 1, Year: 2024},
		BaseAmount:  amount,
		DueDate:     f.now.AddDate(0, 0, 5),
	})
	require.NoError(t, err)

	ord := store.Order{
		ID:            uuid.New(),
		OrderNumber:   "TPQ-20240105-TEST",
		GuardianID:    guardian,
		PaymentMethod: "va",
		TotalAmount:   amount,
		ExpiresAt:     f.now.Add(24 * time.Hour),
	}
	require.NoError(t, f.mem.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.ReserveBillingRecords(ctx, ord.ID, []uuid.UUID{rec.ID}); err != nil {
			return err
		}
		_, err := tx.CreateOrder(ctx, ord, []store.OrderItem{{
			OrderID:         ord.ID,
			BillingRecordID: rec.ID,
			StudentID:       rec.StudentID,
			StudentName:     rec.StudentName,
			Title:           rec.Title,
			Category:        rec.Category,
			Period:          rec.Period,
			Amount:          amount,
		}})
		return err
	}))
	return ord, rec
}

func TestConfirmSettlesOrderAndRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord, rec := f.pendingOrder(t, 150000)

	require.NoError(t, f.svc.Confirm(ctx, ord.ID, 150000, "webhook:midtrans"))

	gotOrd, err := f.mem.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.Equal(t, store.OrderPaid, gotOrd.Status)
	require.NotNil(t, gotOrd.ConfirmedAt)

	gotRec, err := f.mem.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, store.RecordPaid, gotRec.Status)
	require.Equal(t, int64(150000), gotRec.PaidAmount)
	require.Nil(t, gotRec.ReservedBy)
	require.NotNil(t, gotRec.PaidAt)
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord, rec := f.pendingOrder(t, 150000)

	require.NoError(t, f.svc.Confirm(ctx, ord.ID, 150000, "webhook:midtrans"))
	// at-least-once delivery: the same confirmation arrives again
	require.NoError(t, f.svc.Confirm(ctx, ord.ID, 150000, "webhook:midtrans"))

	gotRec, err := f.mem.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, int64(150000), gotRec.PaidAmount)
}

func TestConfirmRejectsAmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord, rec := f.pendingOrder(t, 150000)

	err := f.svc.Confirm(ctx, ord.ID, 140000, "webhook:midtrans")
	require.ErrorIs(t, err, payment.ErrInvalidAmount)

	// rejection must leave order and record untouched
	gotOrd, err := f.mem.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.Equal(t, store.OrderPending, gotOrd.Status)
	gotRec, err := f.mem.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Zero(t, gotRec.PaidAmount)
	require.NotNil(t, gotRec.ReservedBy)
}

func TestConfirmNeverExceedsPayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord, rec := f.pendingOrder(t, 150000)

	require.NoError(t, f.svc.Confirm(ctx, ord.ID, 150000, "webhook:midtrans"))

	gotRec, err := f.mem.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	payable := f.svc.Rule.Payable(gotRec, *gotRec.PaidAt)
	require.LessOrEqual(t, gotRec.PaidAmount, payable)
}

func TestFailReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord, rec := f.pendingOrder(t, 150000)

	require.NoError(t, f.svc.Fail(ctx, ord.ID, "channel reported failure", "webhook:midtrans"))

	gotOrd, err := f.mem.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.Equal(t, store.OrderFailed, gotOrd.Status)

	gotRec, err := f.mem.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Nil(t, gotRec.ReservedBy)
	require.Equal(t, store.RecordUnpaid, gotRec.Status)

	// failed order cannot be confirmed afterwards
	err = f.svc.Confirm(ctx, ord.ID, 150000, "webhook:midtrans")
	require.ErrorIs(t, err, payment.ErrOrderClosed)
}

func TestExpireCancelsPendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord, rec := f.pendingOrder(t, 150000)

	require.NoError(t, f.svc.Expire(ctx, ord.ID))
	// idempotent under repeated sweeps
	require.NoError(t, f.svc.Expire(ctx, ord.ID))

	gotOrd, err := f.mem.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	require.Equal(t, store.OrderCancelled, gotOrd.Status)

	gotRec, err := f.mem.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Nil(t, gotRec.ReservedBy)
}

func TestConfirmMarksPartialWhenFineAccruedAfterCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	guardian := uuid.New()
	rec, err := f.mem.CreateBillingRecord(ctx, store.BillingRecord{
		StudentID:   uuid.New(),
		GuardianID:  guardian,
		StudentName: "Ahmad",
		Category:    store.CategoryTuition,
		Period:      store.Period{Month: 1, Year: 2024},
		BaseAmount:  100000,
		DueDate:     time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	ord := store.Order{
		ID:            uuid.New(),
		OrderNumber:   "TPQ-20240105-PART",
		GuardianID:    guardian,
		PaymentMethod: "va",
		TotalAmount:   100000,
		ExpiresAt:     f.now.Add(24 * time.Hour),
	}
	require.NoError(t, f.mem.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.ReserveBillingRecords(ctx, ord.ID, []uuid.UUID{rec.ID}); err != nil {
			return err
		}
		_, err := tx.CreateOrder(ctx, ord, []store.OrderItem{{
			OrderID:         ord.ID,
			BillingRecordID: rec.ID,
			Amount:          100000,
			Period:          rec.Period,
			StudentID:       rec.StudentID,
		}})
		return err
	}))

	// the record is overdue at payment time, so the 10000 fine leaves a
	// residue and the record settles PARTIAL
	require.NoError(t, f.svc.Confirm(ctx, ord.ID, 100000, "webhook:midtrans"))

	gotRec, err := f.mem.GetBillingRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, store.RecordPartial, gotRec.Status)
	require.Equal(t, int64(100000), gotRec.PaidAmount)
	require.Equal(t, int64(10000), gotRec.Fine)
}
