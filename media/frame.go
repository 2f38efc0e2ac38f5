package media

import (
	"fmt"
	"time"
)

// Audio format constants.
const (
	// SampleRate is the only sample rate carried end to end.
	SampleRate = 48000
	// Channels is the channel count (mono).
	Channels = 1
	// SampleWidth is the size in bytes of one s16 sample.
	SampleWidth = 2
	// FrameDuration is the duration of one audio frame.
	FrameDuration = 20 * time.Millisecond
	// SamplesPerFrame is the per-channel sample count of one frame.
	SamplesPerFrame = SampleRate * int(FrameDuration/time.Millisecond) / 1000
	// AudioFrameBytes is the payload length of one audio frame.
	AudioFrameBytes = SamplesPerFrame * Channels * SampleWidth
)

// Video clock constants.
const (
	VideoClockRate = 90000
	VideoFrameRate = 25
)

// Kind is the media kind of a frame or stream.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Rational is a time base expressed as Num/Den seconds per tick.
type Rational struct {
	Num int64
	Den int64
}

// String formats the rational as "num/den".
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Seconds converts ticks expressed in this time base to a duration. Whole
// seconds and the remainder are scaled separately so long streams do not
// overflow.
func (r Rational) Seconds(ticks int64) time.Duration {
	if r.Den == 0 {
		return 0
	}
	scaled := ticks * r.Num
	whole := scaled / r.Den
	rem := scaled % r.Den
	return time.Duration(whole)*time.Second + time.Duration(rem*int64(time.Second)/r.Den)
}

var (
	// AudioTimeBase is the time base of audio PTS values.
	AudioTimeBase = Rational{Num: 1, Den: SampleRate}
	// VideoTimeBase is the time base of video PTS values.
	VideoTimeBase = Rational{Num: 1, Den: VideoClockRate}
)

// Layout names a channel layout.
type Layout string

const (
	LayoutMono   Layout = "mono"
	LayoutStereo Layout = "stereo"
)

// Frame is implemented by AudioFrame and VideoFrame.
type Frame interface {
	Kind() Kind
}

// AudioFrame is one 20 ms block of interleaved s16 PCM.
type AudioFrame struct {
	PTS        int64
	TimeBase   Rational
	SampleRate int
	Layout     Layout
	Format     string
	Samples    int
	Payload    []byte
}

// Kind implements Frame.
func (f *AudioFrame) Kind() Kind { return KindAudio }

// IsSilent reports whether every payload byte is zero.
func (f *AudioFrame) IsSilent() bool {
	for _, b := range f.Payload {
		if b != 0 {
			return false
		}
	}
	return true
}

// VideoFrame is an opaque decoded image.
type VideoFrame struct {
	PTS      int64
	TimeBase Rational
	Width    int
	Height   int
	Payload  []byte
}

// Kind implements Frame.
func (f *VideoFrame) Kind() Kind { return KindVideo }
