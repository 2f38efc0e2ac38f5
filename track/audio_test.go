package track

import (
	"context"
	"testing"
	"time"

	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Track = (*AudioTrack)(nil)
	_ Track = (*VideoTrack)(nil)
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func toneFrame(value byte) *media.AudioFrame {
	f := media.NewSilenceFrame()
	for i := range f.Payload {
		f.Payload[i] = value
	}
	return f
}

func TestAudioTrackPTSSequence(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))
	track.AddFrame(toneFrame(1))
	track.AddFrame(toneFrame(2))

	for k := 0; k < 6; k++ {
		if k == 4 {
			track.AddFrame(toneFrame(3))
		}
		f := track.Recv(context.Background())
		require.NotNil(t, f)
		assert.Equal(t, int64(960*k), f.PTS, "pull %d", k)
		assert.Equal(t, media.AudioTimeBase, f.TimeBase)
		assert.Equal(t, media.SampleRate, f.SampleRate)
	}
}

func TestAudioTrackPacesAtFrameCadence(t *testing.T) {
	clock := timing.NewFakeClock(epoch)
	track := NewAudioTrack(clock)

	for i := 0; i < 5; i++ {
		track.Recv(context.Background())
	}

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 4)
	for _, d := range sleeps {
		assert.Equal(t, 20*time.Millisecond, d)
	}
	assert.Equal(t, 80*time.Millisecond, clock.Since(epoch))
}

func TestAudioTrackPacesLongSessions(t *testing.T) {
	clock := timing.NewFakeClock(epoch)
	track := NewAudioTrack(clock)
	track.Recv(context.Background())

	elapsed := 200000 * time.Second
	track.mu.Lock()
	track.timestamp = int64(elapsed/time.Second) * media.SampleRate
	track.mu.Unlock()
	clock.Advance(elapsed)

	for i := 0; i < 3; i++ {
		track.Recv(context.Background())
	}
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond}, clock.Sleeps())
}

func TestAudioTrackSkipsSleepWhenBehind(t *testing.T) {
	clock := timing.NewFakeClock(epoch)
	track := NewAudioTrack(clock)

	track.Recv(context.Background())
	clock.Advance(100 * time.Millisecond)
	f := track.Recv(context.Background())

	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, int64(960), f.PTS)
}

func TestAudioTrackSilenceOnUnderrun(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))

	f := track.Recv(context.Background())
	require.Len(t, f.Payload, 1920)
	assert.True(t, f.IsSilent())
	assert.Equal(t, media.SamplesPerFrame, f.Samples)
	assert.Equal(t, media.LayoutMono, f.Layout)
}

func TestAudioTrackDeliversInOrder(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))
	a, b := toneFrame(1), toneFrame(2)
	track.AddFrame(a)
	track.AddFrame(b)

	assert.Same(t, a, track.Recv(context.Background()))
	assert.Same(t, b, track.Recv(context.Background()))
	assert.True(t, track.Recv(context.Background()).IsSilent())
}

func TestAudioTrackJitterBufferEvictsOldest(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))
	for i := 0; i < JitterBufferSize+3; i++ {
		track.AddFrame(toneFrame(byte(i + 1)))
	}
	assert.Equal(t, JitterBufferSize, track.Buffered())

	first := track.Recv(context.Background())
	assert.Equal(t, byte(4), first.Payload[0])
}

func TestAudioTrackAddPCMFraming(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))

	pcm := make([]byte, 2*media.AudioFrameBytes+100)
	for i := range pcm {
		pcm[i] = 7
	}
	track.AddPCM(pcm)
	assert.Equal(t, 2, track.Buffered())

	track.AddPCM(make([]byte, media.AudioFrameBytes-100))
	assert.Equal(t, 3, track.Buffered())

	third := []*media.AudioFrame{
		track.Recv(context.Background()),
		track.Recv(context.Background()),
		track.Recv(context.Background()),
	}[2]
	assert.Equal(t, byte(7), third.Payload[0])
	assert.Equal(t, byte(0), third.Payload[100])
}

func TestAudioTrackInterrupt(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))
	track.AddFrame(toneFrame(1))
	track.AddFrame(toneFrame(2))
	track.AddPCM(make([]byte, 500))

	assert.Equal(t, 2, track.Interrupt())
	assert.Zero(t, track.Buffered())

	// the partial chunk was discarded too
	track.AddPCM(make([]byte, media.AudioFrameBytes-500))
	assert.Zero(t, track.Buffered())
}

func TestAudioTrackCorrectsSampleRate(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))
	f := toneFrame(1)
	f.SampleRate = 44100
	track.AddFrame(f)

	got := track.Recv(context.Background())
	assert.Equal(t, media.SampleRate, got.SampleRate)
	assert.Equal(t, byte(1), got.Payload[0])
}

func TestAudioTrackFitsMisSizedFrames(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))
	track.AddFrame(&media.AudioFrame{SampleRate: media.SampleRate, Payload: []byte{1, 2, 3}})

	got := track.Recv(context.Background())
	require.Len(t, got.Payload, media.AudioFrameBytes)
	assert.Equal(t, []byte{1, 2, 3, 0}, got.Payload[:4])
}

func TestAudioTrackStopYieldsSilence(t *testing.T) {
	track := NewAudioTrack(timing.NewFakeClock(epoch))
	track.Start()
	track.AddFrame(toneFrame(5))
	track.Stop()
	track.Stop()

	assert.Equal(t, StateEnded, track.ReadyState())
	f := track.Recv(context.Background())
	assert.True(t, f.IsSilent())

	track.AddFrame(toneFrame(6))
	assert.Zero(t, track.Buffered())
}

type panicClock struct{ *timing.FakeClock }

func (panicClock) Sleep(context.Context, time.Duration) error { panic("clock failure") }

func TestAudioTrackRecoversFromPanics(t *testing.T) {
	track := NewAudioTrack(panicClock{timing.NewFakeClock(epoch)})
	track.AddFrame(toneFrame(9))

	first := track.Recv(context.Background())
	assert.Equal(t, int64(0), first.PTS)

	var second *media.AudioFrame
	require.NotPanics(t, func() { second = track.Recv(context.Background()) })
	require.NotNil(t, second)
	assert.Equal(t, int64(960), second.PTS)
	assert.True(t, second.IsSilent())
}

func TestAudioTrackCancelledContextStillReturnsFrame(t *testing.T) {
	track := NewAudioTrack(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	track.Recv(ctx)
	f := track.Recv(ctx)
	require.NotNil(t, f)
	assert.Equal(t, int64(960), f.PTS)
}
