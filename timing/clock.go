// Package timing abstracts wall-clock access for deterministic testing.
package timing

import (
	"context"
	"time"
)

// Clock abstracts time operations for deterministic testing.
// Implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// Sleep suspends the caller for d or until ctx is done, whichever
	// comes first. It returns ctx.Err() when interrupted.
	Sleep(ctx context.Context, d time.Duration) error
	// AfterFunc arranges for f to be called once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call. Stop reports whether it prevented
// the call.
type Timer interface {
	Stop() bool
}

// SystemClock uses the standard library time functions.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Since returns the duration since the given time.
func (SystemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Sleep blocks for d unless ctx is cancelled first.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc wraps time.AfterFunc.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// OrDefault returns c, or SystemClock when c is nil.
func OrDefault(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}
