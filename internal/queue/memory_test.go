package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FIFOPerQueue(t *testing.T) {
	q := NewMemory(8)
	defer q.Close()
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, q.Publish(ctx, "a", Message{ID: id, Type: "T"}))
	}
	require.NoError(t, q.Publish(ctx, "b", Message{ID: "x"}))
	assert.Equal(t, 3, q.Len("a"))

	for _, want := range []string{"1", "2", "3"} {
		m, err := q.Receive(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, want, m.ID)
		assert.Equal(t, want, m.Headers[HeaderMessageID])
		assert.Equal(t, "T", m.Headers[HeaderEventType])
	}
	assert.Equal(t, 1, q.Len("b"))
}

func TestMemory_ReceiveHonoursContext(t *testing.T) {
	q := NewMemory(1)
	defer q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx, "empty")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemory_Close(t *testing.T) {
	q := NewMemory(1)
	done := make(chan error, 1)
	go func() {
		_, err := q.Receive(context.Background(), "a")
		done <- err
	}()
	require.NoError(t, q.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("receive did not return after close")
	}
	assert.ErrorIs(t, q.Publish(context.Background(), "a", Message{}), ErrClosed)
	assert.NoError(t, q.Close())
}

func TestNewMessageAndDecode(t *testing.T) {
	type body struct {
		OrderID string `json:"order_id"`
	}
	m, err := NewMessage("OrderSubmitted", "k1", body{OrderID: "o1"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "1", m.Headers[HeaderEventVersion])
	assert.JSONEq(t, `{"order_id":"o1"}`, string(m.Body))

	got, err := Decode[body](m.Body)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)

	_, err = Decode[body]([]byte("nope"))
	assert.Error(t, err)
	assert.Equal(t, "order_submitted.dlq", DeadLetterQueue("order_submitted"))
}
