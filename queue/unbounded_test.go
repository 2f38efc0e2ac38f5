package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnboundedNeverDrops(t *testing.T) {
	q := NewUnbounded[int]()
	for i := 0; i < 500; i++ {
		q.Push(i)
	}
	assert.Equal(t, 500, q.Len())

	for i := 0; i < 500; i++ {
		v, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestUnboundedPopWakesOnPush(t *testing.T) {
	q := NewUnbounded[[]byte]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push([]byte("chunk"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk"), v)
}

func TestUnboundedPopHonoursContext(t *testing.T) {
	q := NewUnbounded[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnboundedDrain(t *testing.T) {
	q := NewUnbounded[int]()
	q.Push(1)
	q.Push(2)
	assert.Equal(t, 2, q.Drain())
	assert.Equal(t, 0, q.Len())
}
