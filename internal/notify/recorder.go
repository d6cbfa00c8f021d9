package notify

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// Recorder keeps every event in memory. Tests read it back with Events and Statuses.
type Recorder struct {
	mu         sync.Mutex
	events     []orders.StatusEvent
	broadcasts []orders.Broadcast

	// Err, when set, is returned from every call after recording.
	Err error
}

func (r *Recorder) NotifyUser(ctx context.Context, userID string, ev orders.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.UserID = userID
	r.events = append(r.events, ev)
	return r.Err
}

func (r *Recorder) NotifyAll(ctx context.Context, b orders.Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, b)
	return r.Err
}

func (r *Recorder) Events() []orders.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orders.StatusEvent(nil), r.events...)
}

// Statuses lists, in emission order, the statuses pushed for one order.
func (r *Recorder) Statuses(orderID string) []orders.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []orders.Status
	for _, ev := range r.events {
		if ev.OrderID == orderID {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (r *Recorder) Broadcasts() []orders.Broadcast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orders.Broadcast(nil), r.broadcasts...)
}
