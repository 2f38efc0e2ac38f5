package timing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually driven Clock. Sleep advances the fake time
// immediately and records the requested duration, so code that paces
// itself against the clock runs without real delays.
//
// Timers created by AfterFunc fire synchronously, in due order, from the
// Sleep or Advance call that moves the fake time past their deadline.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *FakeClock
	due   time.Time
	f     func()
	done  bool
}

// Stop implements Timer.
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// NewFakeClock returns a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Since returns the fake duration elapsed since t.
func (f *FakeClock) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// Sleep records d and advances the fake time by it.
func (f *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	if d > 0 {
		f.now = f.now.Add(d)
	}
	due := f.dueTimers()
	f.mu.Unlock()

	fire(due)
	return nil
}

// Advance moves the fake time forward without recording a sleep.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	due := f.dueTimers()
	f.mu.Unlock()

	fire(due)
}

// AfterFunc schedules f for when the fake time reaches now+d. A
// non-positive d runs f in a new goroutine right away.
func (f *FakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{clock: f, due: f.now.Add(d), f: fn}
	if d <= 0 {
		t.done = true
		go fn()
		return t
	}
	f.timers = append(f.timers, t)
	return t
}

// PendingTimers returns the number of scheduled, unstopped timers.
func (f *FakeClock) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// dueTimers removes and returns the timers due at the current fake time.
// The caller holds f.mu.
func (f *FakeClock) dueTimers() []*fakeTimer {
	var due []*fakeTimer
	kept := f.timers[:0]
	for _, t := range f.timers {
		switch {
		case t.done:
		case !t.due.After(f.now):
			t.done = true
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	f.timers = kept
	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	return due
}

func fire(timers []*fakeTimer) {
	for _, t := range timers {
		t.f()
	}
}

// Sleeps returns a copy of every duration passed to Sleep.
func (f *FakeClock) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
