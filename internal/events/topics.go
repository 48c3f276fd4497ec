package events

// Topic constants for domain events emitted by the billing engine.
const (
	TopicOrderCreated     = "order.created"
	TopicOrderExpired     = "order.expired"
	TopicPaymentConfirmed = "payment.confirmed"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentOverdue   = "payment.overdue"
	TopicProofSubmitted   = "payment.proof_submitted"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderExpired,
		TopicPaymentConfirmed,
		TopicPaymentFailed,
		TopicPaymentOverdue,
		TopicProofSubmitted,
	}
}
