// Package queue is the message channel between pipeline stages: named FIFO queues,
// at-least-once delivery, acknowledged on receipt.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderMessageID    = "x-message-id"
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
	HeaderError        = "x-error"
	HeaderOrigin       = "x-origin-queue"
)

// ErrClosed is returned by Receive once the channel has been closed.
var ErrClosed = errors.New("queue: channel closed")

type Message struct {
	ID      string
	Key     string
	Type    string
	Body    []byte
	Headers map[string]string
	Time    time.Time
}

// Channel is implemented by every broker driver. Receive blocks until a message
// arrives or ctx is done, and acknowledges the message before returning it.
type Channel interface {
	Publish(ctx context.Context, queue string, m Message) error
	Receive(ctx context.Context, queue string) (Message, error)
	Close() error
}

// NewMessage builds a JSON message with a fresh id.
func NewMessage(typ, key string, v any) (Message, error) {
	body, err := Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:   uuid.NewString(),
		Key:  key,
		Type: typ,
		Body: body,
		Headers: map[string]string{
			HeaderEventVersion: "1",
		},
		Time: time.Now().UTC(),
	}, nil
}

// DeadLetterQueue names the queue failed messages of q are parked on.
func DeadLetterQueue(q string) string { return q + ".dlq" }

// headers merges the well-known fields into a copy of m.Headers for drivers that only
// carry a flat header map.
func (m Message) headers() map[string]string {
	out := make(map[string]string, len(m.Headers)+2)
	for k, v := range m.Headers {
		out[k] = v
	}
	if m.ID != "" {
		out[HeaderMessageID] = m.ID
	}
	if m.Type != "" {
		out[HeaderEventType] = m.Type
	}
	return out
}

// fromHeaders restores ID and Type from a flat header map.
func (m *Message) fromHeaders(h map[string]string) {
	m.Headers = h
	if m.ID == "" {
		m.ID = h[HeaderMessageID]
	}
	if m.Type == "" {
		m.Type = h[HeaderEventType]
	}
}
