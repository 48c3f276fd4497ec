package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/events"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/obs"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// ErrInvalidAmount is returned when a confirmation reports an amount that
// does not match the order total.
var ErrInvalidAmount = errors.New("confirmed amount does not match order total")

// ErrOrderClosed is returned when a confirmation targets an order that
// already reached FAILED or CANCELLED.
var ErrOrderClosed = errors.New("order is in a terminal failed state")

// Service reconciles channel confirmations onto orders and their billing
// records. Confirm and Fail are safe under at-least-once callback delivery.
type Service struct {
	Store  store.Store
	Rule   policy.Rule
	Events *events.Bus
	Log    zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Confirm settles a successful payment. Calling it twice with the same result
// yields the same final state: the second call observes the order already
// PAID and returns success without re-applying any payment.
func (s *Service) Confirm(ctx context.Context, orderID uuid.UUID, amount int64, source string) error {
	if s == nil || s.Store == nil {
		return errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()))

	result := "error"
	defer func() {
		if obs.PaymentConfirmTotal != nil {
			obs.PaymentConfirmTotal.WithLabelValues(source, result).Inc()
		}
	}()

	ord, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.Status == store.OrderPaid {
		result = "duplicate"
		return nil
	}
	if ord.Status.Terminal() {
		return fmt.Errorf("order %s is %s: %w", orderID, ord.Status, ErrOrderClosed)
	}
	if amount > 0 && amount != ord.TotalAmount {
		result = "amount_mismatch"
		return fmt.Errorf("got %d expected %d: %w", amount, ord.TotalAmount, ErrInvalidAmount)
	}

	paidAt := s.now()
	err = s.Store.WithinTx(ctx, func(tx store.Store) error {
		ok, err := tx.TransitionOrder(ctx, orderID, store.OrderPending, store.OrderPaid, &paidAt)
		if err != nil {
			return err
		}
		if !ok {
			// a concurrent delivery won the transition
			current, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if current.Status == store.OrderPaid {
				return nil
			}
			return fmt.Errorf("order %s is %s: %w", orderID, current.Status, ErrOrderClosed)
		}
		items, err := tx.GetOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			rec, err := tx.GetBillingRecord(ctx, item.BillingRecordID)
			if err != nil {
				return err
			}
			fine := s.Rule.Fine(rec.DueDate, paidAt)
			payable := rec.BaseAmount - rec.Discount + fine
			newPaid := rec.PaidAmount + item.Amount
			status := store.RecordPartial
			if newPaid >= payable {
				status = store.RecordPaid
			}
			if err := tx.ApplyPayment(ctx, store.ApplyPaymentParams{
				RecordID:        rec.ID,
				Amount:          item.Amount,
				Fine:            fine,
				PaidAt:          paidAt,
				Status:          status,
				ExpectedVersion: rec.Version,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	result = "success"
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, events.TopicPaymentConfirmed, orderID, map[string]any{
			"orderId":     orderID.String(),
			"orderNumber": ord.OrderNumber,
			"guardianId":  ord.GuardianID.String(),
			"total":       ord.TotalAmount,
			"method":      ord.PaymentMethod,
			"source":      source,
		})
	}
	s.Log.Info().
		Str("order_id", orderID.String()).
		Str("source", source).
		Int64("total", ord.TotalAmount).
		Msg("payment confirmed")
	return nil
}

// Fail closes the order after a channel failure or admin rejection and frees
// the reserved billing records so they can be paid again. Idempotent.
func (s *Service) Fail(ctx context.Context, orderID uuid.UUID, reason, source string) error {
	return s.close(ctx, orderID, store.OrderFailed, events.TopicPaymentFailed, reason, source)
}

// Expire cancels an order the channel never confirmed. Used by the
// reconciliation sweep.
func (s *Service) Expire(ctx context.Context, orderID uuid.UUID) error {
	return s.close(ctx, orderID, store.OrderCancelled, events.TopicOrderExpired, "order expired", "sweep")
}

func (s *Service) close(ctx context.Context, orderID uuid.UUID, to store.OrderStatus, topic, reason, source string) error {
	if s == nil || s.Store == nil {
		return errors.New("payment service not configured")
	}
	var transitioned bool
	err := s.Store.WithinTx(ctx, func(tx store.Store) error {
		ok, err := tx.TransitionOrder(ctx, orderID, store.OrderPending, to, nil)
		if err != nil {
			return err
		}
		if !ok {
			current, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if current.Status == to {
				return nil
			}
			return fmt.Errorf("order %s is %s: %w", orderID, current.Status, ErrOrderClosed)
		}
		transitioned = true
		return tx.ReleaseBillingRecords(ctx, orderID)
	})
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}
	if s.Events != nil {
		_, _ = s.Events.Emit(ctx, topic, orderID, map[string]any{
			"orderId": orderID.String(),
			"reason":  reason,
			"source":  source,
		})
	}
	s.Log.Info().
		Str("order_id", orderID.String()).
		Str("status", string(to)).
		Str("reason", reason).
		Msg("order closed")
	return nil
}
