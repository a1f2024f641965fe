package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestTryPublishAndDrain(t *testing.T) {
	q := NewFillQueue(4)

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.TryPublish(schema.Fill{OrderID: uint64(i)}))
	}

	var got []uint64
	q.Drain(func(f schema.Fill) { got = append(got, f.OrderID) })
	assert.Equal(t, []uint64{1, 2, 3}, got)

	// Drain on an empty queue returns immediately.
	q.Drain(func(schema.Fill) { t.Fatal("unexpected fill") })
}

func TestTryPublishFull(t *testing.T) {
	q := NewFillQueue(1)

	require.NoError(t, q.TryPublish(schema.Fill{OrderID: 1}))
	err := q.TryPublish(schema.Fill{OrderID: 2})
	assert.Equal(t, ErrQueueFull, err)
}

func TestPublishAfterClose(t *testing.T) {
	q := NewFillQueue(2)
	require.NoError(t, q.TryPublish(schema.Fill{OrderID: 1}))
	q.Close()

	err := q.TryPublish(schema.Fill{OrderID: 2})
	assert.Equal(t, ErrQueueClosed, err)

	// Buffered fills survive the close.
	var got int
	q.Drain(func(schema.Fill) { got++ })
	assert.Equal(t, 1, got)
}
