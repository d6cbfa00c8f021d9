package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_UnencodableReturnsError(t *testing.T) {
	assert.NotPanics(t, func() {
		_, err := Marshal(make(chan int))
		assert.ErrorContains(t, err, "encode message")
	})

	_, err := NewMessage("T", "k", func() {})
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	type body struct {
		OrderID string `json:"order_id"`
	}
	b, err := Decode[body]([]byte(`{"order_id":"o1"}`))
	require.NoError(t, err)
	assert.Equal(t, "o1", b.OrderID)

	_, err = Decode[body]([]byte(`{`))
	assert.ErrorContains(t, err, "decode message")
}
