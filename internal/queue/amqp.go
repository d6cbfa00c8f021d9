package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// AMQP talks to RabbitMQ through the default exchange: every queue is a durable
// queue of the same name, consumed with auto-ack.
type AMQP struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	pubMu sync.Mutex

	mu         sync.Mutex
	declared   map[string]bool
	deliveries map[string]<-chan amqp.Delivery
}

func DialAMQP(url string, queues ...string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q := &AMQP{
		conn:       conn,
		channel:    channel,
		declared:   map[string]bool{},
		deliveries: map[string]<-chan amqp.Delivery{},
	}
	for _, name := range queues {
		if err := q.declare(name); err != nil {
			q.Close()
			return nil, err
		}
	}
	return q, nil
}

func (q *AMQP) declare(name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[name] {
		return nil
	}
	if _, err := q.channel.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	q.declared[name] = true
	return nil
}

func (q *AMQP) Publish(ctx context.Context, name string, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.declare(name); err != nil {
		return err
	}
	table := amqp.Table{}
	for k, v := range m.headers() {
		table[k] = v
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	err := q.channel.Publish(
		"",    // exchange
		name,  // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    m.ID,
			Type:         m.Type,
			Timestamp:    time.Now(),
			Headers:      table,
			Body:         m.Body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (q *AMQP) consume(name string) (<-chan amqp.Delivery, error) {
	if err := q.declare(name); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if d, ok := q.deliveries[name]; ok {
		return d, nil
	}
	d, err := q.channel.Consume(name, "", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", name, err)
	}
	q.deliveries[name] = d
	return d, nil
}

func (q *AMQP) Receive(ctx context.Context, name string) (Message, error) {
	msgs, err := q.consume(name)
	if err != nil {
		return Message{}, err
	}
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case d, ok := <-msgs:
		if !ok {
			return Message{}, ErrClosed
		}
		h := make(map[string]string, len(d.Headers))
		for k, v := range d.Headers {
			if s, ok := v.(string); ok {
				h[k] = s
			}
		}
		m := Message{ID: d.MessageId, Type: d.Type, Body: d.Body, Time: d.Timestamp}
		m.fromHeaders(h)
		return m, nil
	}
}

func (q *AMQP) Close() error {
	var errs []error
	if q.channel != nil {
		errs = append(errs, q.channel.Close())
	}
	if q.conn != nil && !q.conn.IsClosed() {
		errs = append(errs, q.conn.Close())
	}
	return errors.Join(errs...)
}
