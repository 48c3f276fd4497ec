package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordStatus enumerates the lifecycle states of a billing record.
type RecordStatus string

const (
	RecordUnpaid              RecordStatus = "UNPAID"
	RecordPartial             RecordStatus = "PARTIAL"
	RecordPendingVerification RecordStatus = "PENDING_VERIFICATION"
	RecordPaid                RecordStatus = "PAID"
	RecordCancelled           RecordStatus = "CANCELLED"
)

// OrderStatus enumerates order lifecycle states. PAID, FAILED and CANCELLED
// are terminal.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderFailed    OrderStatus = "FAILED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further automatic transition may occur.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderFailed || s == OrderCancelled
}

// Category classifies what a billing record charges for.
type Category string

const (
	CategoryTuition  Category = "tuition"
	CategoryDonation Category = "donation"
	CategoryOther    Category = "other"
)

// Period identifies one billing month.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Valid reports whether the period denotes a real calendar month.
func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 2000 && p.Year <= 2100
}

// BillingRecord is one student's obligation for one billing period. Records
// are never deleted; settled or superseded records stay for the audit trail.
type BillingRecord struct {
	ID          uuid.UUID
	StudentID   uuid.UUID
	GuardianID  uuid.UUID
	StudentName string
	Title       string
	Category    Category
	Period      Period
	BaseAmount  int64
	Discount    int64
	Fine        int64
	PaidAmount  int64
	DueDate     time.Time
	PaidAt      *time.Time
	Status      RecordStatus
	ReservedBy  *uuid.UUID
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Settled reports whether the record no longer accepts payment.
func (r BillingRecord) Settled() bool {
	return r.Status == RecordPaid || r.Status == RecordCancelled
}

// Cart is a guardian-scoped consolidation of billing records selected for
// payment. Carts are reconstructible from billing records and safe to GC.
type Cart struct {
	ID         uuid.UUID
	GuardianID uuid.UUID
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem snapshots one billing record's payable amount at add-time.
type CartItem struct {
	ID              uuid.UUID
	CartID          uuid.UUID
	BillingRecordID uuid.UUID
	StudentID       uuid.UUID
	StudentName     string
	Title           string
	Category        Category
	Period          Period
	SnapshotAmount  int64
	AddedAt         time.Time
}

// Order is the durable unit submitted to a payment channel. Exactly one order
// may ever transition a given billing record from unpaid to paid.
type Order struct {
	ID            uuid.UUID
	OrderNumber   string
	GuardianID    uuid.UUID
	Status        OrderStatus
	PaymentMethod string
	TotalAmount   int64
	ChannelRef    string
	ProofNote     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ConfirmedAt   *time.Time
}

// OrderItem allocates a share of the order total to one billing record.
type OrderItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	BillingRecordID uuid.UUID
	StudentID       uuid.UUID
	StudentName     string
	Title           string
	Category        Category
	Period          Period
	Amount          int64
}

// DomainEvent is a persisted fact about something that happened in the
// billing domain, fanned out to notifiers after commit.
type DomainEvent struct {
	ID          uuid.UUID
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
	OccurredAt  time.Time
}

// OrderStats summarises orders inside an analytics window.
type OrderStats struct {
	TotalCount int64
	PaidCount  int64
	Revenue    int64
}

// MethodStat aggregates settled orders per payment method.
type MethodStat struct {
	Method     string
	TotalCount int64
	PaidCount  int64
	Revenue    int64
}

// CategoryStat aggregates paid order items per billing category.
type CategoryStat struct {
	Category Category
	Count    int64
	Revenue  int64
}

// PayerStat aggregates paid amounts per student.
type PayerStat struct {
	StudentID   uuid.UUID
	StudentName string
	OrderCount  int64
	TotalPaid   int64
}

// DailyStat is one day's worth of settled activity. Days without activity are
// absent from store results; the analytics service densifies the series.
type DailyStat struct {
	Day     time.Time
	Count   int64
	Revenue int64
}
