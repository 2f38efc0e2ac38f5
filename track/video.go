package track

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/metrics"
	"github.com/opd-ai/avatarrelay/queue"
	"github.com/opd-ai/avatarrelay/timing"
	"github.com/sirupsen/logrus"
)

// VideoTrack holds the most recent video frame and stamps it on delivery.
type VideoTrack struct {
	clock timing.Clock
	slot  *queue.Bounded[*media.VideoFrame]

	mu        sync.Mutex
	shared    time.Time
	hasShared bool
	start     time.Time
	paced     bool
	started   bool

	stopCtx context.Context
	stop    context.CancelFunc
}

// NewVideoTrack creates a live video track. A nil clock uses the system
// clock.
func NewVideoTrack(clock timing.Clock) *VideoTrack {
	ctx, cancel := context.WithCancel(context.Background())
	return &VideoTrack{
		clock:   timing.OrDefault(clock),
		slot:    queue.MustBounded[*media.VideoFrame](1),
		stopCtx: ctx,
		stop:    cancel,
	}
}

// Kind implements Track.
func (t *VideoTrack) Kind() media.Kind { return media.KindVideo }

// Start implements Track.
func (t *VideoTrack) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		t.started = true
		logrus.WithFields(logrus.Fields{
			"function": "VideoTrack.Start",
		}).Debug("Video track started")
	}
}

// Stop ends the track. Pending and future Recv calls return ErrTrackEnded.
func (t *VideoTrack) Stop() {
	t.stop()
	t.slot.Drain()
}

// ReadyState implements Track.
func (t *VideoTrack) ReadyState() State {
	if t.stopCtx.Err() != nil {
		return StateEnded
	}
	return StateLive
}

// SetSharedStartTime sets the epoch used to stamp frames, so audio and
// video share a common timeline. It only has an effect before the first
// frame is delivered.
func (t *VideoTrack) SetSharedStartTime(start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shared = start
	t.hasShared = true
}

// AddFrame replaces any undelivered frame with f.
func (t *VideoTrack) AddFrame(f *media.VideoFrame) {
	if f == nil || t.stopCtx.Err() != nil {
		return
	}
	if t.slot.Push(f) {
		metrics.FramesEvicted.WithLabelValues("video_track").Inc()
	}
}

// Recv blocks until a frame is available, then stamps its PTS with the
// elapsed time since the stream start on the 90 kHz clock.
func (t *VideoTrack) Recv(ctx context.Context) (*media.VideoFrame, error) {
	if t.stopCtx.Err() != nil {
		return nil, ErrTrackEnded
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(t.stopCtx, cancel)
	defer release()

	f, err := t.slot.Pop(ctx)
	if err != nil {
		if t.stopCtx.Err() != nil {
			return nil, ErrTrackEnded
		}
		return nil, err
	}

	f.PTS = t.elapsedTicks()
	f.TimeBase = media.VideoTimeBase
	return f, nil
}

func (t *VideoTrack) elapsedTicks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.paced {
		t.paced = true
		if t.hasShared {
			t.start = t.shared
		} else {
			t.start = t.clock.Now()
		}
	}

	elapsed := t.clock.Since(t.start)
	if elapsed < 0 {
		return 0
	}
	whole := int64(elapsed / time.Second)
	frac := int64(elapsed % time.Second)
	return whole*media.VideoClockRate + frac*media.VideoClockRate/int64(time.Second)
}
