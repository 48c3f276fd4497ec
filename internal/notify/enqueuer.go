package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/baitusshuffah20-wq/tpq-billing/internal/events"
	"github.com/baitusshuffah20-wq/tpq-billing/internal/store"
)

// Enqueuer turns domain events into background notification tasks. It
// implements events.Notifier so the bus fans events into the asynq queue
// without blocking the request path on email delivery.
type Enqueuer struct {
	Client *asynq.Client
	Log    zerolog.Logger
}

// Notify schedules the notification task for the event's topic. Topics with
// no notification mapping are ignored.
func (e Enqueuer) Notify(ctx context.Context, event store.DomainEvent) error {
	if e.Client == nil {
		return nil
	}
	var (
		task *asynq.Task
		err  error
	)
	switch event.Topic {
	case events.TopicPaymentConfirmed:
		task, err = NewReceiptTask(event.AggregateID.String())
	case events.TopicPaymentOverdue:
		task, err = NewOverdueReminderTask(event.AggregateID.String(), event.OccurredAt)
	case events.TopicProofSubmitted:
		task, err = NewProofAlertTask(event.AggregateID.String())
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		// a duplicate task ID means the notification is already queued
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	e.Log.Debug().Str("topic", event.Topic).Str("aggregate_id", event.AggregateID.String()).Msg("notification task enqueued")
	return nil
}
