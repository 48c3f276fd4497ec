package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/billing"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

func TestGeneratePeriodSkipsExistingRecords(t *testing.T) {
	mem := store.NewMemory()
	svc := &billing.Service{
		Store: mem,
		Rule:  policy.Rule{Kind: policy.KindFlat, Amount: 10000},
	}
	ctx := context.Background()
	per := store.Period{Month: 2, Year: 2024}
	due := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	inputs := []billing.GeneratePeriodInput{
		{StudentID: uuid.New(), GuardianID: uuid.New(), StudentName: "Ahmad", BaseAmount: 150000},
		{StudentID: uuid.New(), GuardianID: uuid.New(), StudentName: "Fatimah", BaseAmount: 150000},
	}
	result, err := svc.GeneratePeriod(ctx, per, due, "SPP Februari 2024", inputs)
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Zero(t, result.Skipped)

	// second run must not duplicate
	result, err = svc.GeneratePeriod(ctx, per, due, "SPP Februari 2024", inputs)
	require.NoError(t, err)
	require.Zero(t, result.Created)
	require.Equal(t, 2, result.Skipped)
}

func TestGeneratePeriodValidatesInput(t *testing.T) {
	svc := &billing.Service{Store: store.NewMemory()}
	ctx := context.Background()
	due := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	_, err := svc.GeneratePeriod(ctx, store.Period{Month: 13, Year: 2024}, due, "SPP", nil)
	require.ErrorIs(t, err, billing.ErrInvalidInput)

	_, err = svc.GeneratePeriod(ctx, store.Period{Month: 2, Year: 2024}, due, "SPP", []billing.GeneratePeriodInput{
		{StudentID: uuid.New(), GuardianID: uuid.New(), BaseAmount: 0},
	})
	require.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestListOutstandingComputesLivePayable(t *testing.T) {
	mem := store.NewMemory()
	now := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	svc := &billing.Service{
		Store: mem,
		Rule:  policy.Rule{Kind: policy.KindFlat, Amount: 10000},
		Now:   func() time.Time { return now },
	}
	ctx := context.Background()
	guardian := uuid.New()

	_, err := mem.CreateBillingRecord(ctx, store.BillingRecord{
		StudentID:   uuid.New(),
		GuardianID:  guardian,
		StudentName: "Ahmad",
		Category:    store.CategoryTuition,
		Period:      store.Period{Month: 1, Year: 2024},
		BaseAmount:  150000,
		DueDate:     time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	views, err := svc.ListOutstanding(ctx, guardian)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.True(t, views[0].Overdue)
	require.Equal(t, int64(10000), views[0].Fine)
	require.Equal(t, int64(160000), views[0].Payable)
	require.Equal(t, int64(160000), views[0].Outstanding)
}
