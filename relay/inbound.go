package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/opd-ai/avatarrelay/latch"
	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/metrics"
	"github.com/opd-ai/avatarrelay/queue"
	"github.com/opd-ai/avatarrelay/room"
	"github.com/sirupsen/logrus"
)

const (
	// ReceiveTimeout bounds a single receive so shutdown is observed.
	ReceiveTimeout = 2 * time.Second

	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff = 100 * time.Millisecond
)

// Inbound relays frames from remote streams into per-kind queues.
type Inbound struct {
	audio *queue.Bounded[*media.AudioFrame]
	video *queue.Bounded[*media.VideoFrame]
	kill  *latch.Latch

	timeout time.Duration

	mu     sync.Mutex
	active map[string]bool
}

// NewInbound creates a relay feeding audio and video. Loops stop once kill
// is set.
func NewInbound(audio *queue.Bounded[*media.AudioFrame], video *queue.Bounded[*media.VideoFrame], kill *latch.Latch) *Inbound {
	return &Inbound{
		audio:   audio,
		video:   video,
		kill:    kill,
		timeout: ReceiveTimeout,
		active:  make(map[string]bool),
	}
}

// Handler returns a participant listener that starts one RunStream loop per
// enabled stream through spawn. A stream already being relayed is ignored.
func (in *Inbound) Handler(ctx context.Context, spawn func(func() error)) room.ParticipantHandler {
	return room.ParticipantHandlerFuncs{
		Enabled: func(s room.Stream) {
			in.mu.Lock()
			if in.active[s.ID()] {
				in.mu.Unlock()
				return
			}
			in.active[s.ID()] = true
			in.mu.Unlock()

			logrus.WithFields(logrus.Fields{
				"function":  "Inbound.Handler",
				"stream_id": s.ID(),
				"kind":      s.Kind(),
			}).Info("Relaying backend stream")

			spawn(func() error {
				defer in.release(s.ID())
				return in.RunStream(ctx, s)
			})
		},
		Disabled: func(s room.Stream) {
			logrus.WithFields(logrus.Fields{
				"function":  "Inbound.Handler",
				"stream_id": s.ID(),
				"kind":      s.Kind(),
			}).Info("Backend stream disabled")
		},
	}
}

func (in *Inbound) release(id string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.active, id)
}

// RunStream receives frames from s until the kill latch is set, ctx is
// done or the stream closes. Timeouts and per-frame failures never end the
// loop.
func (in *Inbound) RunStream(ctx context.Context, s room.Stream) error {
	for !in.stopped(ctx) {
		rctx, cancel := context.WithTimeout(ctx, in.timeout)
		frame, err := s.Recv(rctx)
		cancel()

		if err != nil {
			if in.stopped(ctx) {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, room.ErrStreamClosed) {
				logrus.WithFields(logrus.Fields{
					"function":  "Inbound.RunStream",
					"stream_id": s.ID(),
				}).Info("Backend stream closed")
				return nil
			}

			logrus.WithFields(logrus.Fields{
				"function":  "Inbound.RunStream",
				"stream_id": s.ID(),
				"error":     err.Error(),
			}).Warn("Failed to receive frame")
			metrics.FramesDropped.WithLabelValues(string(s.Kind()), "receive").Inc()
			in.pause(ctx)
			continue
		}

		in.dispatch(s, frame)
	}
	return nil
}

func (in *Inbound) dispatch(s room.Stream, frame media.Frame) {
	switch f := frame.(type) {
	case *media.AudioFrame:
		if f == nil {
			break
		}
		if in.audio.Push(f) {
			metrics.FramesEvicted.WithLabelValues("inbound_audio").Inc()
		}
		metrics.FramesRelayed.WithLabelValues(string(media.KindAudio)).Inc()
		return
	case *media.VideoFrame:
		if f == nil {
			break
		}
		if in.video.Push(f) {
			metrics.FramesEvicted.WithLabelValues("inbound_video").Inc()
		}
		metrics.FramesRelayed.WithLabelValues(string(media.KindVideo)).Inc()
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Inbound.dispatch",
		"stream_id": s.ID(),
		"kind":      s.Kind(),
	}).Warn("Dropping unusable frame")
	metrics.FramesDropped.WithLabelValues(string(s.Kind()), "invalid").Inc()
}

func (in *Inbound) stopped(ctx context.Context) bool {
	return in.kill.IsSet() || ctx.Err() != nil
}

func (in *Inbound) pause(ctx context.Context) {
	timer := time.NewTimer(ErrorBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-in.kill.Done():
	}
}
