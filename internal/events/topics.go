package events

// Topic constants for domain events emitted by the service.
const (
	TopicOrderCreated           = "order.created"
	TopicOrderItemStatusChanged = "order.item_status_changed"
	TopicOrderOnHold            = "order.on_hold"
	TopicOrderPaid              = "order.paid"
	TopicOrderCompleted         = "order.completed"
	TopicOrderCancelled         = "order.cancelled"
	TopicSplitPaid              = "checkout.split_paid"
	TopicPaymentsRefunded       = "checkout.payments_refunded"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderItemStatusChanged,
		TopicOrderOnHold,
		TopicOrderPaid,
		TopicOrderCompleted,
		TopicOrderCancelled,
		TopicSplitPaid,
		TopicPaymentsRefunded,
	}
}
