package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/common"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/events"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/obs"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/policy"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Expirer closes pending orders whose payment window lapsed.
type Expirer interface {
	Expire(ctx context.Context, orderID uuid.UUID) error
}

// Worker processes notification and maintenance tasks off the asynq queue.
type Worker struct {
	Store      store.Store
	Mail       common.EmailSender
	Directory  Directory
	Rule       policy.Rule
	Expirer    Expirer
	Events     *events.Bus
	AdminEmail string
	BatchSize  int
	Log        zerolog.Logger
	Now        func() time.Time
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Worker) batch() int {
	if w.BatchSize <= 0 {
		return 200
	}
	return w.BatchSize
}

// Mux registers all task handlers.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReceiptEmail, w.HandleReceipt)
	mux.HandleFunc(TypeOverdueReminder, w.HandleOverdueReminder)
	mux.HandleFunc(TypeProofAlert, w.HandleProofAlert)
	mux.HandleFunc(TypeExpireSweep, w.HandleExpireSweep)
	mux.HandleFunc(TypeOverdueScan, w.HandleOverdueScan)
	mux.HandleFunc(TypeCartGC, w.HandleCartGC)
	return mux
}

// HandleReceipt emails the payment receipt for a settled order.
func (w *Worker) HandleReceipt(ctx context.Context, t *asynq.Task) error {
	var payload ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode receipt payload: %w", err)
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("receipt order id: %w", err)
	}
	ord, err := w.Store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if ord.Status != store.OrderPaid {
		// a late failure raced the receipt, nothing to send
		return nil
	}
	items, err := w.Store.GetOrderItems(ctx, ord.ID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	return w.send(ctx, ord.GuardianID, receiptSubject(ord), receiptBody(ord, items))
}

// HandleOverdueReminder emails the guardian about one overdue record.
func (w *Worker) HandleOverdueReminder(ctx context.Context, t *asynq.Task) error {
	var payload OverdueReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode reminder payload: %w", err)
	}
	recordID, err := uuid.Parse(payload.RecordID)
	if err != nil {
		return fmt.Errorf("reminder record id: %w", err)
	}
	rec, err := w.Store.GetBillingRecord(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", recordID, err)
	}
	if rec.Settled() {
		return nil
	}
	now := w.now()
	outstanding := w.Rule.Outstanding(rec, now)
	if outstanding <= 0 {
		return nil
	}
	return w.send(ctx, rec.GuardianID, reminderSubject(rec), reminderBody(rec, outstanding, now))
}

// HandleProofAlert tells the admin inbox a manual transfer awaits review.
func (w *Worker) HandleProofAlert(ctx context.Context, t *asynq.Task) error {
	if w.Mail == nil || w.AdminEmail == "" {
		return nil
	}
	var payload ProofAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode proof payload: %w", err)
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("proof order id: %w", err)
	}
	ord, err := w.Store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	return w.Mail.Send(w.AdminEmail, proofAlertSubject(ord), proofAlertBody(ord))
}

// HandleExpireSweep cancels pending orders past their payment window and
// returns their billing records to the payable pool.
func (w *Worker) HandleExpireSweep(ctx context.Context, _ *asynq.Task) error {
	if w.Expirer == nil {
		return nil
	}
	orders, err := w.Store.ListExpiredPendingOrders(ctx, w.now(), w.batch())
	if err != nil {
		return fmt.Errorf("list expired orders: %w", err)
	}
	var expired int
	for _, ord := range orders {
		if err := w.Expirer.Expire(ctx, ord.ID); err != nil {
			w.Log.Error().Err(err).Str("order_id", ord.ID.String()).Msg("expire sweep failed for order")
			continue
		}
		expired++
		if obs.OrdersExpiredTotal != nil {
			obs.OrdersExpiredTotal.Inc()
		}
	}
	if expired > 0 {
		w.Log.Info().Int("expired", expired).Msg("expire sweep closed pending orders")
	}
	return nil
}

// HandleOverdueScan emits an overdue event per unpaid record past due. The
// reminder tasks enqueued downstream are keyed per record per day, so a scan
// running more often than daily stays quiet.
func (w *Worker) HandleOverdueScan(ctx context.Context, _ *asynq.Task) error {
	if w.Events == nil {
		return nil
	}
	now := w.now()
	records, err := w.Store.ListOverdueUnpaid(ctx, now, w.batch())
	if err != nil {
		return fmt.Errorf("list overdue records: %w", err)
	}
	for _, rec := range records {
		_, err := w.Events.Emit(ctx, events.TopicPaymentOverdue, rec.ID, map[string]any{
			"recordId":    rec.ID.String(),
			"studentName": rec.StudentName,
			"period":      rec.Period.String(),
			"outstanding": w.Rule.Outstanding(rec, now),
		})
		if err != nil {
			w.Log.Error().Err(err).Str("record_id", rec.ID.String()).Msg("overdue event emit failed")
		}
	}
	return nil
}

// HandleCartGC drops carts whose TTL lapsed.
func (w *Worker) HandleCartGC(ctx context.Context, _ *asynq.Task) error {
	deleted, err := w.Store.DeleteExpiredCarts(ctx, w.now())
	if err != nil {
		return fmt.Errorf("delete expired carts: %w", err)
	}
	if deleted > 0 {
		w.Log.Info().Int64("deleted", deleted).Msg("cart gc removed expired carts")
	}
	return nil
}

func (w *Worker) send(ctx context.Context, guardianID uuid.UUID, subject, body string) error {
	if w.Mail == nil || w.Directory == nil {
		return nil
	}
	to, err := w.Directory.GuardianEmail(ctx, guardianID)
	if err != nil {
		// missing contact data is not retryable
		w.Log.Warn().Err(err).Str("guardian_id", guardianID.String()).Msg("notification skipped")
		return nil
	}
	return w.Mail.Send(to, subject, body)
}
