package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handler processes one message. Its error is logged by the Consumer and never stops the loop.
type Handler func(ctx context.Context, m Message) error

// Deduper remembers processed message ids; first reports whether id is new.
type Deduper interface {
	MarkProcessed(ctx context.Context, scope, id string) (first bool, err error)
}

// Consumer is the single receive loop of one queue.
type Consumer struct {
	Channel    Channel
	Queue      string
	Handler    Handler
	Logger     *zap.Logger
	Dedup      Deduper // optional
	DeadLetter bool

	// Backoff is slept after a receive error; defaults to 200ms.
	Backoff time.Duration
}

// Run blocks until ctx is cancelled or the channel is closed.
func (c *Consumer) Run(ctx context.Context) error {
	log := c.logger().With(zap.String("queue", c.Queue))
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	log.Info("consumer started")

	for {
		m, err := c.Channel.Receive(ctx, c.Queue)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info("consumer stopped")
				return nil
			}
			if errors.Is(err, ErrClosed) {
				log.Info("channel closed, consumer exiting")
				return err
			}
			log.Error("receive failed", zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m Message) {
	log := c.logger().With(zap.String("queue", c.Queue), zap.String("message_id", m.ID))

	msgCtx, span := otel.Tracer("bookstore.queue").Start(Extract(ctx, m), c.Queue+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingDestinationName(c.Queue),
			semconv.MessagingMessageID(m.ID),
			attribute.String("messaging.message.type", m.Type),
		),
	)
	defer span.End()

	if c.Dedup != nil && m.ID != "" {
		first, err := c.Dedup.MarkProcessed(msgCtx, c.Queue, m.ID)
		if err != nil {
			log.Warn("dedup lookup failed, processing anyway", zap.Error(err))
		} else if !first {
			log.Info("duplicate message skipped")
			span.SetAttributes(attribute.Bool("messaging.duplicate", true))
			return
		}
	}

	if err := c.safeHandle(msgCtx, m); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		log.Error("message handling failed", zap.Error(err), zap.ByteString("body", m.Body))
		c.deadLetter(msgCtx, log, m, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (c *Consumer) safeHandle(ctx context.Context, m Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.Handler(ctx, m)
}

func (c *Consumer) deadLetter(ctx context.Context, log *zap.Logger, m Message, cause error) {
	if !c.DeadLetter {
		return
	}
	dl := m
	dl.Headers = m.headers()
	dl.Headers[HeaderError] = cause.Error()
	dl.Headers[HeaderOrigin] = c.Queue
	if err := c.Channel.Publish(ctx, DeadLetterQueue(c.Queue), dl); err != nil {
		log.Error("dead-letter publish failed", zap.Error(err))
	}
}

func (c *Consumer) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
