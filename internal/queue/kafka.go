package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka maps each queue onto a topic: one writer per topic and one group reader per
// topic. Readers commit the offset as part of ReadMessage, i.e. ack on receipt.
type Kafka struct {
	brokers []string
	group   string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers map[string]*kafka.Reader
	closed  bool
}

func NewKafka(brokers []string, group string) *Kafka {
	return &Kafka{
		brokers: brokers,
		group:   group,
		writers: map[string]*kafka.Writer{},
		readers: map[string]*kafka.Reader{},
	}
}

func (k *Kafka) writer(topic string) (*kafka.Writer, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}
	w, ok := k.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(k.brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			// one message per Publish; the default 1s batch wait would stall every stage
			BatchTimeout:           10 * time.Millisecond,
		}
		k.writers[topic] = w
	}
	return w, nil
}

func (k *Kafka) reader(topic string) (*kafka.Reader, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, ErrClosed
	}
	r, ok := k.readers[topic]
	if !ok {
		r = kafka.NewReader(kafka.ReaderConfig{
			Brokers:        k.brokers,
			GroupID:        k.group,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // sync commit inside ReadMessage
		})
		k.readers[topic] = r
	}
	return r, nil
}

func (k *Kafka) Publish(ctx context.Context, topic string, m Message) error {
	w, err := k.writer(topic)
	if err != nil {
		return err
	}
	h := m.headers()
	headers := make([]kafka.Header, 0, len(h))
	for key, v := range h {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(v)})
	}
	if err := w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(m.Key),
		Value:   m.Body,
		Time:    time.Now(),
		Headers: headers,
	}); err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

func (k *Kafka) Receive(ctx context.Context, topic string) (Message, error) {
	r, err := k.reader(topic)
	if err != nil {
		return Message{}, err
	}
	km, err := r.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, ErrClosed
		}
		return Message{}, err
	}
	h := make(map[string]string, len(km.Headers))
	for _, hd := range km.Headers {
		h[hd.Key] = string(hd.Value)
	}
	m := Message{Key: string(km.Key), Body: km.Value, Time: km.Time}
	m.fromHeaders(h)
	return m, nil
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	var errs []error
	for _, r := range k.readers {
		errs = append(errs, r.Close())
	}
	for _, w := range k.writers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}
