// Package latch provides a set-once signal used for session shutdown and
// one-shot notifications such as "backend participant joined".
package latch

import (
	"context"
	"sync"
)

// Latch is a boolean that can be set exactly once and never reset.
// The zero value is not usable; construct with New.
type Latch struct {
	once sync.Once
	done chan struct{}
}

// New returns an unset latch.
func New() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Set sets the latch. It reports true only for the call that actually
// transitioned the latch; later calls are no-ops and return false.
func (l *Latch) Set() bool {
	set := false
	l.once.Do(func() {
		close(l.done)
		set = true
	})
	return set
}

// IsSet reports whether the latch has been set.
func (l *Latch) IsSet() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the latch is set.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the latch is set or ctx is done.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Context returns a child of parent that is cancelled when the latch is
// set. The returned cancel func releases the watcher goroutine.
func (l *Latch) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
