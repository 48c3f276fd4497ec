package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

func record() store.BillingRecord {
	return store.BillingRecord{
		BaseAmount: 150000,
		Discount:   0,
		DueDate:    time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestPayableBeforeDueDate(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindFlat, Amount: 10000}
	asOf := time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC)
	require.Equal(t, int64(150000), rule.Payable(record(), asOf))
}

func TestPayableAfterDueDateFlatFine(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindFlat, Amount: 10000}
	asOf := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	require.Equal(t, int64(160000), rule.Payable(record(), asOf))
}

func TestPayableOnDueDateItselfHasNoFine(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindFlat, Amount: 10000}
	asOf := time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC)
	require.Equal(t, int64(150000), rule.Payable(record(), asOf))
}

func TestPerDayFineAccruesAndCaps(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindPerDay, PerDay: 2000, MaxFine: 15000}
	rec := record()

	require.Equal(t, int64(2000), rule.Fine(rec.DueDate, rec.DueDate.AddDate(0, 0, 1)))
	require.Equal(t, int64(10000), rule.Fine(rec.DueDate, rec.DueDate.AddDate(0, 0, 5)))
	require.Equal(t, int64(15000), rule.Fine(rec.DueDate, rec.DueDate.AddDate(0, 0, 30)))
}

func TestFineIdempotentWithinSameDay(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindPerDay, PerDay: 2000}
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	morning := time.Date(2024, 1, 13, 6, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 13, 22, 0, 0, 0, time.UTC)
	require.Equal(t, rule.Fine(due, morning), rule.Fine(due, evening))
}

func TestFineMonotonicAcrossDays(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindPerDay, PerDay: 2000}
	due := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	prev := int64(0)
	for d := 0; d < 10; d++ {
		fine := rule.Fine(due, due.AddDate(0, 0, d))
		require.GreaterOrEqual(t, fine, prev)
		prev = fine
	}
}

func TestPayableFrozenAtPaymentDate(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindPerDay, PerDay: 2000}
	rec := record()
	paidAt := time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
	rec.PaidAt = &paidAt
	rec.PaidAmount = 154000

	// weeks later the payable amount must still reflect the payment date
	later := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, int64(154000), rule.Payable(rec, later))
	require.Zero(t, rule.Outstanding(rec, later))
	require.Equal(t, store.RecordPaid, rule.StatusFor(rec, later))
}

func TestDiscountReducesPayable(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindFlat, Amount: 10000}
	rec := record()
	rec.Discount = 50000
	asOf := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.Equal(t, int64(100000), rule.Payable(rec, asOf))
}

func TestStatusForPartialPayment(t *testing.T) {
	rule := policy.Rule{Kind: policy.KindNone}
	rec := record()
	rec.PaidAmount = 50000
	asOf := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.Equal(t, store.RecordPartial, rule.StatusFor(rec, asOf))
	require.Equal(t, int64(100000), rule.Outstanding(rec, asOf))
}
