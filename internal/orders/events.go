package orders

import "time"

const (
	MessageOrderSubmitted       = "OrderSubmitted"
	MessageReservationRequested = "InventoryReservationRequested"
)

// OrderMessage is the body carried on both pipeline queues.
type OrderMessage struct {
	OrderID string `json:"order_id"`
	Items   []Item `json:"items"`
}

// StatusEvent is pushed to observers after every committed transition.
type StatusEvent struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	Status     Status    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Broadcast is a free-form notice for every connected observer.
type Broadcast struct {
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewStatusEvent(o Order) StatusEvent {
	return StatusEvent{OrderID: o.ID, UserID: o.UserID, Status: o.Status, OccurredAt: time.Now().UTC()}
}
