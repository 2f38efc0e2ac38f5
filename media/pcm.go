package media

import (
	"github.com/sirupsen/logrus"
)

// NewSilenceFrame returns a zero-filled audio frame with the standard
// shape. PTS is left at zero for the caller to stamp.
func NewSilenceFrame() *AudioFrame {
	return &AudioFrame{
		TimeBase:   AudioTimeBase,
		SampleRate: SampleRate,
		Layout:     LayoutMono,
		Format:     "s16",
		Samples:    SamplesPerFrame,
		Payload:    make([]byte, AudioFrameBytes),
	}
}

// PadEven appends a single zero byte when b has odd length so that the
// result is aligned to 16-bit samples. Even-length input is returned as is.
func PadEven(b []byte) []byte {
	if len(b)%2 == 0 {
		return b
	}
	out := make([]byte, len(b)+1)
	copy(out, b)
	return out
}

// AudioFrameFromPCM builds an audio frame from one chunk of raw s16 mono
// PCM. Chunks of the wrong size are logged and fitted to the standard
// frame length (zero padded or truncated) so every frame has the same
// shape.
func AudioFrameFromPCM(chunk []byte) *AudioFrame {
	if len(chunk) != AudioFrameBytes {
		logrus.WithFields(logrus.Fields{
			"function": "AudioFrameFromPCM",
			"received": len(chunk),
			"expected": AudioFrameBytes,
		}).Warn("Incorrect audio chunk size")
	}

	chunk = PadEven(chunk)
	if samples := len(chunk) / SampleWidth; samples != SamplesPerFrame*Channels {
		logrus.WithFields(logrus.Fields{
			"function": "AudioFrameFromPCM",
			"samples":  samples,
			"expected": SamplesPerFrame * Channels,
		}).Debug("Incorrect number of samples in chunk")
	}

	frame := NewSilenceFrame()
	copy(frame.Payload, chunk)
	return frame
}

// SamplesToBytes encodes s16 samples as little-endian bytes.
func SamplesToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*SampleWidth)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
