package orders

const (
	TopicOrderEvents     = "orders.events"
	TopicPaymentOutcomes = "payment.outcomes"
)

// PartitionKey keeps all events of one aggregate on one partition, in order.
func PartitionKey(id string) []byte { return []byte(id) }
