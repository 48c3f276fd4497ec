// Package policy computes payable amounts for billing records. Everything here
// is a pure function of its inputs so fine rules stay testable without a clock.
package policy

import (
	"time"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// RuleKind selects how an overdue fine accrues.
type RuleKind string

const (
	// KindNone disables fines entirely.
	KindNone RuleKind = "none"
	// KindFlat charges a single fixed fine once the due date passes.
	KindFlat RuleKind = "flat"
	// KindPerDay charges a fine per full day overdue, optionally capped.
	KindPerDay RuleKind = "per_day"
)

// Rule is the configured fine formula. MaxFine caps per-day accrual; zero
// means uncapped.
type Rule struct {
	Kind    RuleKind `koanf:"kind"`
	Amount  int64    `koanf:"amount"`
	PerDay  int64    `koanf:"per_day"`
	MaxFine int64    `koanf:"max_fine"`
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysOverdue reports how many full days asOf lies past dueDate, at day
// granularity. Same-day payments are never overdue.
func DaysOverdue(dueDate, asOf time.Time) int64 {
	delta := day(asOf).Sub(day(dueDate))
	if delta <= 0 {
		return 0
	}
	return int64(delta / (24 * time.Hour))
}

// Fine computes the accrued fine for a record that is overdue at asOf. The
// result depends only on the day difference, so recomputing within the same
// day yields the same value, and the value never decreases as days pass.
func (r Rule) Fine(dueDate, asOf time.Time) int64 {
	days := DaysOverdue(dueDate, asOf)
	if days == 0 {
		return 0
	}
	switch r.Kind {
	case KindFlat:
		return r.Amount
	case KindPerDay:
		fine := days * r.PerDay
		if r.MaxFine > 0 && fine > r.MaxFine {
			return r.MaxFine
		}
		return fine
	default:
		return 0
	}
}

// Payable returns the total amount owed on the record as of the given moment:
// base minus discount plus any accrued fine. Once the record has been paid the
// fine is frozen at the payment date, so a settled record's payable amount
// never drifts afterwards.
func (r Rule) Payable(rec store.BillingRecord, asOf time.Time) int64 {
	effective := asOf
	if rec.PaidAt != nil && rec.PaidAt.Before(effective) {
		effective = *rec.PaidAt
	}
	payable := rec.BaseAmount - rec.Discount + r.Fine(rec.DueDate, effective)
	if payable < 0 {
		return 0
	}
	return payable
}

// Outstanding is the remaining balance on the record at asOf, never negative.
func (r Rule) Outstanding(rec store.BillingRecord, asOf time.Time) int64 {
	rest := r.Payable(rec, asOf) - rec.PaidAmount
	if rest < 0 {
		return 0
	}
	return rest
}

// StatusFor derives the record status from amounts. Reservation and
// verification states are owned by the checkout engine, not by this rule.
func (r Rule) StatusFor(rec store.BillingRecord, asOf time.Time) store.RecordStatus {
	switch {
	case rec.PaidAmount >= r.Payable(rec, asOf):
		return store.RecordPaid
	case rec.PaidAmount > 0:
		return store.RecordPartial
	default:
		return store.RecordUnpaid
	}
}
