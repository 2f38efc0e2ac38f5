package queue

import (
	"context"
	"fmt"
)

// Bounded is a fixed-capacity FIFO that evicts its oldest element on
// overflow. It is intended for one producer and one consumer; concurrent
// producers never corrupt it but may race on which element is evicted.
type Bounded[T any] struct {
	ch chan T
}

// NewBounded creates a queue holding at most capacity elements.
func NewBounded[T any](capacity int) (*Bounded[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", capacity)
	}
	return &Bounded[T]{ch: make(chan T, capacity)}, nil
}

// MustBounded is NewBounded for constant capacities.
func MustBounded[T any](capacity int) *Bounded[T] {
	q, err := NewBounded[T](capacity)
	if err != nil {
		panic(err)
	}
	return q
}

// Push appends v, first evicting the oldest element if the queue is full.
// It reports whether an element was evicted.
func (q *Bounded[T]) Push(v T) (evicted bool) {
	for {
		select {
		case q.ch <- v:
			return evicted
		default:
		}
		select {
		case <-q.ch:
			evicted = true
		default:
			// consumer emptied a slot between the two selects
		}
	}
}

// TryPop removes and returns the oldest element without blocking.
func (q *Bounded[T]) TryPop() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Pop blocks until an element is available or ctx is done.
func (q *Bounded[T]) Pop(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Drain removes every queued element and returns how many were dropped.
func (q *Bounded[T]) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued elements.
func (q *Bounded[T]) Len() int { return len(q.ch) }

// Cap returns the capacity.
func (q *Bounded[T]) Cap() int { return cap(q.ch) }
