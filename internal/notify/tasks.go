package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types processed by the worker. Notification tasks are enqueued by the
// event fanout; the maintenance tasks are enqueued by the scheduler.
const (
	TypeReceiptEmail    = "notify:receipt"
	TypeOverdueReminder = "notify:overdue"
	TypeProofAlert      = "notify:proof"

	TypeExpireSweep = "maintenance:expire_orders"
	TypeOverdueScan = "maintenance:overdue_scan"
	TypeCartGC      = "maintenance:cart_gc"
)

// ReceiptPayload identifies the settled order a receipt is rendered for.
type ReceiptPayload struct {
	OrderID string `json:"orderId"`
}

// OverdueReminderPayload identifies one overdue billing record.
type OverdueReminderPayload struct {
	RecordID string `json:"recordId"`
}

// ProofAlertPayload tells admins a manual transfer awaits verification.
type ProofAlertPayload struct {
	OrderID string `json:"orderId"`
}

func newJSONTask(kind string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return asynq.NewTask(kind, data, opts...), nil
}

// NewReceiptTask builds the receipt email task for a settled order. The task
// is keyed on the order so duplicate confirmations collapse into one email.
func NewReceiptTask(orderID string) (*asynq.Task, error) {
	return newJSONTask(TypeReceiptEmail, ReceiptPayload{OrderID: orderID},
		asynq.TaskID("receipt:"+orderID),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
}

// NewOverdueReminderTask builds a reminder for one overdue record. The task
// ID carries the day so each record reminds at most once per day.
func NewOverdueReminderTask(recordID string, day time.Time) (*asynq.Task, error) {
	return newJSONTask(TypeOverdueReminder, OverdueReminderPayload{RecordID: recordID},
		asynq.TaskID(fmt.Sprintf("overdue:%s:%s", recordID, day.UTC().Format("2006-01-02"))),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	)
}

// NewProofAlertTask builds the admin alert for a submitted transfer proof.
func NewProofAlertTask(orderID string) (*asynq.Task, error) {
	return newJSONTask(TypeProofAlert, ProofAlertPayload{OrderID: orderID},
		asynq.TaskID("proof:"+orderID),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
}
