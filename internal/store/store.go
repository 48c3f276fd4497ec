package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrVersionConflict indicates an optimistic concurrency check failed: the
// row changed between read and write.
var ErrVersionConflict = errors.New("store: version conflict")

// ErrReservationConflict indicates another order currently holds one of the
// requested billing records.
var ErrReservationConflict = errors.New("store: reservation conflict")

// ErrDuplicate indicates a uniqueness constraint would be violated.
var ErrDuplicate = errors.New("store: duplicate")

// ApplyPaymentParams carries one record's share of a confirmed order.
type ApplyPaymentParams struct {
	RecordID        uuid.UUID
	Amount          int64
	Fine            int64
	PaidAt          time.Time
	Status          RecordStatus
	ExpectedVersion int64
}

// OrderFilter narrows admin order listings.
type OrderFilter struct {
	Status OrderStatus
	Method string
	Limit  int
	Offset int
}

// Store is the persistence boundary for the billing engine. A single value is
// injected per request scope; WithinTx yields a transactional view so that
// every mutation inside fn commits or rolls back atomically.
type Store interface {
	// WithinTx runs fn against a transactional store. Any error aborts the
	// transaction; the caller observes either all of fn's writes or none.
	WithinTx(ctx context.Context, fn func(Store) error) error

	// Billing records.
	CreateBillingRecord(ctx context.Context, rec BillingRecord) (BillingRecord, error)
	GetBillingRecord(ctx context.Context, id uuid.UUID) (BillingRecord, error)
	ListOutstandingByGuardian(ctx context.Context, guardianID uuid.UUID) ([]BillingRecord, error)
	ListRecordsByPeriod(ctx context.Context, p Period) ([]BillingRecord, error)
	ListOverdueUnpaid(ctx context.Context, asOf time.Time, limit int) ([]BillingRecord, error)
	// ReserveBillingRecords atomically marks every record as held by orderID.
	// It fails with ErrReservationConflict when any record is already held by
	// another live order or already settled, leaving no record reserved.
	ReserveBillingRecords(ctx context.Context, orderID uuid.UUID, recordIDs []uuid.UUID) error
	// ReleaseBillingRecords drops the reservation held by orderID and restores
	// the pre-reservation status for records parked in PENDING_VERIFICATION.
	ReleaseBillingRecords(ctx context.Context, orderID uuid.UUID) error
	SetRecordStatus(ctx context.Context, recordID uuid.UUID, status RecordStatus, expectedVersion int64) error
	// ApplyPayment credits the record and advances its status under an
	// optimistic version check, clearing any reservation.
	ApplyPayment(ctx context.Context, p ApplyPaymentParams) error

	// Carts.
	GetCartByGuardian(ctx context.Context, guardianID uuid.UUID) (Cart, error)
	CreateCart(ctx context.Context, guardianID uuid.UUID, expiresAt time.Time) (Cart, error)
	TouchCart(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) error
	UpsertCartItem(ctx context.Context, item CartItem) error
	DeleteCartItem(ctx context.Context, cartID, recordID uuid.UUID) error
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]CartItem, error)
	ClearCart(ctx context.Context, cartID uuid.UUID) error
	DeleteExpiredCarts(ctx context.Context, asOf time.Time) (int64, error)

	// Orders.
	CreateOrder(ctx context.Context, ord Order, items []OrderItem) (Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	GetOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
	ListOrdersByGuardian(ctx context.Context, guardianID uuid.UUID, limit, offset int) ([]Order, int64, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int64, error)
	// TransitionOrder moves the order from one status to another. It returns
	// false without error when the order is not in the expected from-status,
	// which is how confirm stays idempotent under duplicate callbacks.
	TransitionOrder(ctx context.Context, id uuid.UUID, from, to OrderStatus, confirmedAt *time.Time) (bool, error)
	SetOrderChannelRef(ctx context.Context, id uuid.UUID, ref string) error
	SetOrderProofNote(ctx context.Context, id uuid.UUID, note string) error
	ListExpiredPendingOrders(ctx context.Context, asOf time.Time, limit int) ([]Order, error)

	// Domain events.
	InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (DomainEvent, error)

	// Analytics reads. All of these consider terminal-state orders only;
	// PENDING orders never contribute to revenue figures.
	OrderStatsInWindow(ctx context.Context, from, to time.Time) (OrderStats, error)
	MethodStatsInWindow(ctx context.Context, from, to time.Time) ([]MethodStat, error)
	CategoryStatsInWindow(ctx context.Context, from, to time.Time) ([]CategoryStat, error)
	TopPayersInWindow(ctx context.Context, from, to time.Time, limit int) ([]PayerStat, error)
	DailyStatsInWindow(ctx context.Context, from, to time.Time) ([]DailyStat, error)
}
