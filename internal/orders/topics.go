package orders

const (
	QueueOrderSubmitted       = "order_submitted"
	QueueInventoryReservation = "inventory_reservation"
)

// Partition key = order_id, so every message of one order keeps its order on partitioned brokers.
func PartitionKey(orderID string) string { return orderID }
