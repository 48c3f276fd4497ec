// Package checkout converts a guardian's cart into a pending order, reserving
// the underlying billing records so no concurrent order can settle them.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/cart"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/events"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/lock"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/obs"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/payment"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// ErrCartEmpty is returned when checkout is attempted on an empty cart.
var ErrCartEmpty = errors.New("cart is empty")

// ErrReservationConflict is returned when another order holds one of the
// requested billing records. The caller should not retry automatically.
var ErrReservationConflict = errors.New("billing record reserved by another order")

// ErrChannelTimeout indicates the payment channel did not answer before the
// deadline. The order stays pending for the reconciliation sweep.
var ErrChannelTimeout = errors.New("payment channel timed out")

// ErrChannelRejected indicates a definitive rejection from the channel.
var ErrChannelRejected = errors.New("payment channel rejected the order")

// MethodManual is the bank-transfer method settled by admin verification
// instead of a payment channel.
const MethodManual = "manual"

// StaleCartError carries the refreshed summary so the guardian can re-confirm
// corrected amounts instead of being silently charged a different total.
type StaleCartError struct {
	Summary cart.Summary
}

func (e *StaleCartError) Error() string { return "cart amounts changed since selection" }

// Output is the checkout result returned to the guardian.
type Output struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Status      string    `json:"status"`
	TotalAmount int64     `json:"totalAmount"`
	Method      string    `json:"paymentMethod"`
	ChannelRef  string    `json:"channelRef,omitempty"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Service orchestrates cart validation, record reservation, order creation,
// and channel submission.
type Service struct {
	Store          store.Store
	CartSvc        *cart.Service
	Rule           policy.Rule
	Locker         lock.Locker
	Providers      map[string]payment.Provider
	Events         *events.Bus
	OrderTTL       time.Duration
	ChannelTimeout time.Duration
	LockTTL        time.Duration
	Now            func() time.Time
	Log            zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) orderTTL() time.Duration {
	if s == nil || s.OrderTTL <= 0 {
		return 24 * time.Hour
	}
	return s.OrderTTL
}

func (s *Service) channelTimeout() time.Duration {
	if s == nil || s.ChannelTimeout <= 0 {
		return 10 * time.Second
	}
	return s.ChannelTimeout
}

// Checkout validates the cart against live record state, reserves every
// referenced record for a new pending order, and submits the order to the
// selected payment channel. Reservation and order creation happen in one
// transaction; a failure anywhere before commit leaves every record untouched.
func (s *Service) Checkout(ctx context.Context, guardianID uuid.UUID, method string) (Output, error) {
	if s == nil || s.Store == nil || s.CartSvc == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return Output{}, errors.New("payment method is required")
	}
	if method != MethodManual {
		if _, ok := s.Providers[method]; !ok {
			return Output{}, fmt.Errorf("unsupported payment method %q", method)
		}
	}

	summary, err := s.CartSvc.Summarize(ctx, guardianID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return Output{}, ErrCartEmpty
		}
		return Output{}, err
	}
	validLines := 0
	for _, line := range summary.Lines {
		if !line.Invalid {
			validLines++
		}
	}
	if validLines == 0 {
		return Output{}, ErrCartEmpty
	}
	if summary.Stale || validLines != len(summary.Lines) {
		refreshed, rerr := s.CartSvc.RefreshSnapshots(ctx, guardianID)
		if rerr != nil {
			return Output{}, rerr
		}
		s.metric(method, "stale")
		return Output{}, &StaleCartError{Summary: refreshed}
	}

	now := s.now()
	ord := store.Order{
		ID:            uuid.New(),
		OrderNumber:   orderNumber(now),
		GuardianID:    guardianID,
		Status:        store.OrderPending,
		PaymentMethod: method,
		TotalAmount:   summary.Total,
		ExpiresAt:     now.Add(s.orderTTL()),
	}
	items := make([]store.OrderItem, 0, len(summary.Lines))
	recordIDs := make([]uuid.UUID, 0, len(summary.Lines))
	for _, line := range summary.Lines {
		items = append(items, store.OrderItem{
			OrderID:         ord.ID,
			BillingRecordID: line.BillingRecordID,
			StudentID:       line.StudentID,
			StudentName:     line.StudentName,
			Title:           line.Title,
			Category:        line.Category,
			Period:          line.PeriodRaw,
			Amount:          line.SnapshotAmount,
		})
		recordIDs = append(recordIDs, line.BillingRecordID)
	}
	// stable lock order prevents deadlock between concurrent checkouts
	sort.Slice(recordIDs, func(i, j int) bool { return recordIDs[i].String() < recordIDs[j].String() })

	reserve := func(ctx context.Context) error {
		return s.Store.WithinTx(ctx, func(tx store.Store) error {
			if err := tx.ReserveBillingRecords(ctx, ord.ID, recordIDs); err != nil {
				return err
			}
			if _, err := tx.CreateOrder(ctx, ord, items); err != nil {
				return err
			}
			if method == MethodManual {
				for _, id := range recordIDs {
					rec, err := tx.GetBillingRecord(ctx, id)
					if err != nil {
						return err
					}
					if err := tx.SetRecordStatus(ctx, id, store.RecordPendingVerification, rec.Version); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	if s.Locker.R != nil {
		keys := make([]string, len(recordIDs))
		for i, id := range recordIDs {
			keys[i] = "reserve:record:" + id.String()
		}
		lockTTL := s.LockTTL
		if lockTTL <= 0 {
			lockTTL = 30 * time.Second
		}
		err = s.Locker.TryLockAll(ctx, keys, lockTTL, reserve)
		if errors.Is(err, lock.ErrNotAcquired) {
			err = fmt.Errorf("%w: %w", ErrReservationConflict, err)
		}
	} else {
		err = reserve(ctx)
	}
	if err != nil {
		if errors.Is(err, store.ErrReservationConflict) || errors.Is(err, ErrReservationConflict) {
			s.metric(method, "conflict")
			if obs.ReservationConflictTotal != nil {
				obs.ReservationConflictTotal.Inc()
			}
			if !errors.Is(err, ErrReservationConflict) {
				err = fmt.Errorf("%w: %v", ErrReservationConflict, err)
			}
			return Output{}, err
		}
		return Output{}, err
	}

	_ = s.CartSvc.Clear(ctx, guardianID)
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicOrderCreated, ord.ID, map[string]any{
			"orderId":     ord.ID.String(),
			"orderNumber": ord.OrderNumber,
			"guardianId":  guardianID.String(),
			"method":      method,
			"total":       ord.TotalAmount,
		})
	}

	out := Output{
		OrderID:     ord.ID,
		OrderNumber: ord.OrderNumber,
		Status:      string(store.OrderPending),
		TotalAmount: ord.TotalAmount,
		Method:      method,
		ExpiresAt:   ord.ExpiresAt,
	}
	if method == MethodManual {
		s.metric(method, "success")
		return out, nil
	}

	ref, redirect, err := s.submit(ctx, ord, method)
	if err != nil {
		if errors.Is(err, ErrChannelRejected) {
			// definitive rejection, fail the order and free the records
			_ = s.Store.WithinTx(ctx, func(tx store.Store) error {
				ok, terr := tx.TransitionOrder(ctx, ord.ID, store.OrderPending, store.OrderFailed, nil)
				if terr != nil || !ok {
					return terr
				}
				return tx.ReleaseBillingRecords(ctx, ord.ID)
			})
			s.metric(method, "rejected")
			return Output{}, err
		}
		// timeout or transient error: the order stays pending and the
		// reconciliation sweep or a retried submit picks it up
		s.metric(method, "timeout")
		s.Log.Warn().Err(err).Str("order_id", ord.ID.String()).Msg("channel submit timed out, order left pending")
		out.Status = string(store.OrderPending)
		return out, ErrChannelTimeout
	}
	_ = s.Store.SetOrderChannelRef(ctx, ord.ID, ref)
	out.ChannelRef = ref
	out.RedirectURL = redirect
	s.metric(method, "success")
	return out, nil
}

func (s *Service) submit(ctx context.Context, ord store.Order, method string) (ref, redirect string, err error) {
	provider := s.Providers[method]
	if provider == nil {
		return "", "", fmt.Errorf("unsupported payment method %q", method)
	}
	cctx, cancel := context.WithTimeout(ctx, s.channelTimeout())
	defer cancel()
	start := time.Now()
	resp, err := provider.Charge(cctx, payment.ChargeRequest{
		OrderID:     ord.ID.String(),
		OrderNumber: ord.OrderNumber,
		Amount:      ord.TotalAmount,
		Method:      method,
		ExpiresAt:   ord.ExpiresAt,
	})
	result := "success"
	if err != nil {
		result = "error"
	}
	if obs.ChannelLatency != nil {
		obs.ChannelLatency.WithLabelValues(method, result).Observe(float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return "", "", fmt.Errorf("%w: %w", ErrChannelTimeout, err)
		}
		return "", "", fmt.Errorf("%w: %w", ErrChannelRejected, err)
	}
	return resp.Reference, resp.RedirectURL, nil
}

func (s *Service) metric(method, result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(method, result).Inc()
	}
}

func orderNumber(now time.Time) string {
	return fmt.Sprintf("TPQ-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}
