// Package billing exposes the tuition record surface: outstanding record
// listings for guardians and period generation for admins.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Service reads and generates billing records.
type Service struct {
	Store store.Store
	Rule  policy.Rule
	Log   zerolog.Logger
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// RecordView is a billing record enriched with its live payable amount.
type RecordView struct {
	ID          uuid.UUID          `json:"id"`
	StudentID   uuid.UUID          `json:"studentId"`
	StudentName string             `json:"studentName"`
	Title       string             `json:"title"`
	Category    store.Category     `json:"category"`
	Period      string             `json:"period"`
	BaseAmount  int64              `json:"baseAmount"`
	Discount    int64              `json:"discount"`
	Fine        int64              `json:"fine"`
	PaidAmount  int64              `json:"paidAmount"`
	Payable     int64              `json:"payable"`
	Outstanding int64              `json:"outstanding"`
	DueDate     time.Time          `json:"dueDate"`
	Overdue     bool               `json:"overdue"`
	Status      store.RecordStatus `json:"status"`
}

func (s *Service) view(rec store.BillingRecord, asOf time.Time) RecordView {
	payable := s.Rule.Payable(rec, asOf)
	return RecordView{
		ID:          rec.ID,
		StudentID:   rec.StudentID,
		StudentName: rec.StudentName,
		Title:       rec.Title,
		Category:    rec.Category,
		Period:      rec.Period.String(),
		BaseAmount:  rec.BaseAmount,
		Discount:    rec.Discount,
		Fine:        s.Rule.Fine(rec.DueDate, asOf),
		PaidAmount:  rec.PaidAmount,
		Payable:     payable,
		Outstanding: s.Rule.Outstanding(rec, asOf),
		DueDate:     rec.DueDate,
		Overdue:     !rec.Settled() && policy.DaysOverdue(rec.DueDate, asOf) > 0,
		Status:      rec.Status,
	}
}

// ListOutstanding returns the guardian's unsettled records with live payable
// amounts, ordered by due date.
func (s *Service) ListOutstanding(ctx context.Context, guardianID uuid.UUID) ([]RecordView, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("billing service not configured")
	}
	recs, err := s.Store.ListOutstandingByGuardian(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.view(rec, now))
	}
	return out, nil
}

// GeneratePeriodInput describes one record to create for a billing period.
type GeneratePeriodInput struct {
	StudentID   uuid.UUID
	GuardianID  uuid.UUID
	StudentName string
	Category    store.Category
	BaseAmount  int64
	Discount    int64
}

// GeneratePeriodResult reports the outcome of a period generation batch.
type GeneratePeriodResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// GeneratePeriod creates one billing record per student for the given period.
// Students who already hold a record for that period and category are skipped,
// so re-running a generation batch is safe.
func (s *Service) GeneratePeriod(ctx context.Context, per store.Period, dueDate time.Time, title string, inputs []GeneratePeriodInput) (GeneratePeriodResult, error) {
	if s == nil || s.Store == nil {
		return GeneratePeriodResult{}, errors.New("billing service not configured")
	}
	if !per.Valid() {
		return GeneratePeriodResult{}, fmt.Errorf("invalid period %d-%d: %w", per.Year, per.Month, ErrInvalidInput)
	}
	if dueDate.IsZero() {
		return GeneratePeriodResult{}, fmt.Errorf("due date required: %w", ErrInvalidInput)
	}
	var result GeneratePeriodResult
	for _, in := range inputs {
		if in.StudentID == uuid.Nil || in.GuardianID == uuid.Nil || in.BaseAmount <= 0 {
			return result, fmt.Errorf("student, guardian, and positive amount required: %w", ErrInvalidInput)
		}
		category := in.Category
		if category == "" {
			category = store.CategoryTuition
		}
		_, err := s.Store.CreateBillingRecord(ctx, store.BillingRecord{
			StudentID:   in.StudentID,
			GuardianID:  in.GuardianID,
			StudentName: in.StudentName,
			Title:       title,
			Category:    category,
			Period:      per,
			BaseAmount:  in.BaseAmount,
			Discount:    in.Discount,
			DueDate:     dueDate,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Created++
	}
	s.Log.Info().
		Str("period", per.String()).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Msg("billing period generated")
	return result, nil
}

// OverdueRecords lists unsettled records past their due date, for the overdue
// notification scan.
func (s *Service) OverdueRecords(ctx context.Context, asOf time.Time, limit int) ([]store.BillingRecord, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("billing service not configured")
	}
	return s.Store.ListOverdueUnpaid(ctx, asOf, limit)
}
