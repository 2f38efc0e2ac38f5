package timing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemClockSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SystemClock{}.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSystemClockSleepNonPositive(t *testing.T) {
	assert.NoError(t, SystemClock{}.Sleep(context.Background(), 0))
	assert.NoError(t, SystemClock{}.Sleep(context.Background(), -time.Second))
}

func TestFakeClockRecordsSleeps(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	require.NoError(t, clock.Sleep(context.Background(), 20*time.Millisecond))
	require.NoError(t, clock.Sleep(context.Background(), 2*time.Second))
	clock.Advance(time.Second)

	assert.Equal(t, []time.Duration{20 * time.Millisecond, 2 * time.Second}, clock.Sleeps())
	assert.Equal(t, 3020*time.Millisecond, clock.Since(start))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, SystemClock{}, OrDefault(nil))
	fake := NewFakeClock(time.Now())
	assert.Same(t, fake, OrDefault(fake))
}

func TestSystemClockAfterFunc(t *testing.T) {
	fired := make(chan struct{})
	SystemClock{}.AfterFunc(time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	timer := SystemClock{}.AfterFunc(time.Hour, func() { t.Error("stopped timer fired") })
	assert.True(t, timer.Stop())
}

func TestFakeClockAfterFunc(t *testing.T) {
	clock := NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var order []string
	clock.AfterFunc(2*time.Second, func() { order = append(order, "late") })
	clock.AfterFunc(time.Second, func() { order = append(order, "early") })
	stopped := clock.AfterFunc(time.Second, func() { order = append(order, "stopped") })
	assert.Equal(t, 3, clock.PendingTimers())

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(999 * time.Millisecond)
	assert.Empty(t, order)

	require.NoError(t, clock.Sleep(context.Background(), 1500*time.Millisecond))
	assert.Equal(t, []string{"early", "late"}, order)
	assert.Zero(t, clock.PendingTimers())
}
