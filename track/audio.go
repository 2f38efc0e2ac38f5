package track

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/metrics"
	"github.com/opd-ai/avatarrelay/queue"
	"github.com/opd-ai/avatarrelay/timing"
	"github.com/sirupsen/logrus"
)

// JitterBufferSize is the number of frames the audio track buffers.
const JitterBufferSize = 10

// AudioTrack paces buffered audio frames at the 20 ms frame cadence.
type AudioTrack struct {
	clock  timing.Clock
	buffer *queue.Bounded[*media.AudioFrame]

	mu        sync.Mutex
	pcm       []byte
	paced     bool
	start     time.Time
	timestamp int64

	started atomic.Bool
	ended   atomic.Bool
}

// NewAudioTrack creates a live audio track. A nil clock uses the system
// clock.
func NewAudioTrack(clock timing.Clock) *AudioTrack {
	return &AudioTrack{
		clock:  timing.OrDefault(clock),
		buffer: queue.MustBounded[*media.AudioFrame](JitterBufferSize),
	}
}

// Kind implements Track.
func (t *AudioTrack) Kind() media.Kind { return media.KindAudio }

// Start implements Track.
func (t *AudioTrack) Start() {
	if t.started.CompareAndSwap(false, true) {
		logrus.WithFields(logrus.Fields{
			"function": "AudioTrack.Start",
		}).Debug("Audio track started")
	}
}

// Stop ends the track and discards buffered audio. Recv keeps returning
// silence afterwards.
func (t *AudioTrack) Stop() {
	if t.ended.CompareAndSwap(false, true) {
		t.Interrupt()
		logrus.WithFields(logrus.Fields{
			"function": "AudioTrack.Stop",
		}).Debug("Audio track stopped")
	}
}

// ReadyState implements Track.
func (t *AudioTrack) ReadyState() State {
	if t.ended.Load() {
		return StateEnded
	}
	return StateLive
}

// Buffered returns the number of frames waiting in the jitter buffer.
func (t *AudioTrack) Buffered() int { return t.buffer.Len() }

// AddFrame queues f for playback, evicting the oldest buffered frame when
// the jitter buffer is full.
func (t *AudioTrack) AddFrame(f *media.AudioFrame) {
	if f == nil || t.ended.Load() {
		return
	}
	if f.SampleRate != media.SampleRate {
		logrus.WithFields(logrus.Fields{
			"function":    "AudioTrack.AddFrame",
			"sample_rate": f.SampleRate,
			"expected":    media.SampleRate,
		}).Warn("Correcting audio frame sample rate")
		f.SampleRate = media.SampleRate
		f.TimeBase = media.AudioTimeBase
	}
	if t.buffer.Push(f) {
		metrics.FramesEvicted.WithLabelValues("audio_track").Inc()
	}
}

// AddPCM appends raw s16 mono PCM. Every complete 20 ms chunk becomes a
// frame; the remainder waits for more bytes.
func (t *AudioTrack) AddPCM(b []byte) {
	if len(b) == 0 || t.ended.Load() {
		return
	}

	t.mu.Lock()
	t.pcm = append(t.pcm, b...)
	var frames []*media.AudioFrame
	for len(t.pcm) >= media.AudioFrameBytes {
		frames = append(frames, media.AudioFrameFromPCM(t.pcm[:media.AudioFrameBytes]))
		t.pcm = t.pcm[media.AudioFrameBytes:]
	}
	if len(t.pcm) == 0 {
		t.pcm = nil
	}
	t.mu.Unlock()

	for _, f := range frames {
		t.AddFrame(f)
	}
}

// Interrupt drops every buffered frame and any partial PCM chunk. It
// returns the number of frames dropped.
func (t *AudioTrack) Interrupt() int {
	t.mu.Lock()
	t.pcm = nil
	t.mu.Unlock()

	n := t.buffer.Drain()
	logrus.WithFields(logrus.Fields{
		"function": "AudioTrack.Interrupt",
		"dropped":  n,
	}).Debug("Audio track interrupted")
	return n
}

// Recv returns the next frame, sleeping until its presentation time. It
// never fails: an empty buffer, an ended track or an unexpected panic all
// yield a silence frame with the next timestamp.
func (t *AudioTrack) Recv(ctx context.Context) (frame *media.AudioFrame) {
	var pts int64
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "AudioTrack.Recv",
				"pts":      pts,
				"panic":    r,
			}).Error("Recovered from audio receive failure")
			frame = stamp(media.NewSilenceFrame(), pts)
		}
	}()

	var wait time.Duration
	pts, wait = t.advance()
	if wait > 0 {
		if err := t.clock.Sleep(ctx, wait); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "AudioTrack.Recv",
				"error":    err.Error(),
			}).Trace("Audio pacing sleep interrupted")
		}
	}

	return stamp(t.next(), pts)
}

// advance moves the virtual clock one frame forward and returns the new
// timestamp with the time left until it is due.
func (t *AudioTrack) advance() (int64, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.paced {
		t.paced = true
		t.start = t.clock.Now()
		t.timestamp = 0
	} else {
		t.timestamp += int64(media.SamplesPerFrame)
	}

	due := t.start.Add(media.AudioTimeBase.Seconds(t.timestamp))
	return t.timestamp, due.Sub(t.clock.Now())
}

func (t *AudioTrack) next() *media.AudioFrame {
	if t.ended.Load() {
		return media.NewSilenceFrame()
	}

	f, ok := t.buffer.TryPop()
	if !ok || f == nil {
		metrics.SilenceFrames.Inc()
		return media.NewSilenceFrame()
	}

	if len(f.Payload) != media.AudioFrameBytes {
		metrics.FramesDropped.WithLabelValues(string(media.KindAudio), "size").Inc()
		return media.AudioFrameFromPCM(f.Payload)
	}
	return f
}

func stamp(f *media.AudioFrame, pts int64) *media.AudioFrame {
	f.PTS = pts
	f.TimeBase = media.AudioTimeBase
	f.SampleRate = media.SampleRate
	return f
}
