package queue

import (
	"context"
	"sync"
)

// Memory is an in-process Channel backed by one buffered Go channel per queue.
type Memory struct {
	mu     sync.Mutex
	buf    int
	queues map[string]chan Message
	done   chan struct{}
	closed bool
}

func NewMemory(buf int) *Memory {
	if buf <= 0 {
		buf = 1024
	}
	return &Memory{buf: buf, queues: map[string]chan Message{}, done: make(chan struct{})}
}

func (q *Memory) queue(name string) (chan Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan Message, q.buf)
		q.queues[name] = ch
	}
	return ch, nil
}

func (q *Memory) Publish(ctx context.Context, name string, m Message) error {
	ch, err := q.queue(name)
	if err != nil {
		return err
	}
	m.Headers = m.headers()
	select {
	case ch <- m:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Memory) Receive(ctx context.Context, name string) (Message, error) {
	ch, err := q.queue(name)
	if err != nil {
		return Message{}, err
	}
	select {
	case m := <-ch:
		return m, nil
	case <-q.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Len reports how many messages are waiting on a queue.
func (q *Memory) Len(name string) int {
	ch, err := q.queue(name)
	if err != nil {
		return 0
	}
	return len(ch)
}

func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
