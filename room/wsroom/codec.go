package wsroom

import (
	"fmt"

	"github.com/opd-ai/avatarrelay/media"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

type audioDecoder interface {
	decode(payload []byte) (*media.AudioFrame, error)
}

func newAudioDecoder(codec string) (audioDecoder, error) {
	switch codec {
	case CodecL16, "":
		return l16Decoder{}, nil
	case CodecOpus:
		return &opusDecoder{dec: opus.NewDecoder(), out: make([]byte, media.AudioFrameBytes)}, nil
	default:
		return nil, fmt.Errorf("unsupported audio codec %q", codec)
	}
}

// l16Decoder converts network-order L16 to the little-endian frame layout.
type l16Decoder struct{}

func (l16Decoder) decode(payload []byte) (*media.AudioFrame, error) {
	if len(payload)%media.SampleWidth != 0 {
		return nil, fmt.Errorf("odd L16 payload length %d", len(payload))
	}
	frame := media.NewSilenceFrame()
	frame.Payload = swapBytes(payload)
	frame.Samples = len(payload) / media.SampleWidth
	return frame, nil
}

// opusDecoder decodes one 20 ms Opus packet to 48 kHz s16 PCM.
type opusDecoder struct {
	dec opus.Decoder
	out []byte
}

func (d *opusDecoder) decode(payload []byte) (*media.AudioFrame, error) {
	bandwidth, isStereo, err := d.dec.Decode(payload, d.out)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	frame := media.NewSilenceFrame()
	copy(frame.Payload, d.out)
	if isStereo {
		frame.Layout = media.LayoutStereo
	}
	logrus.WithFields(logrus.Fields{
		"function":  "opusDecoder.decode",
		"bandwidth": bandwidth.String(),
		"stereo":    isStereo,
	}).Trace("Decoded opus packet")
	return frame, nil
}

// swapBytes returns a copy of b with every 16-bit sample byte-swapped.
func swapBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := 0; i+1 < len(b); i += 2 {
		out[i], out[i+1] = b[i+1], b[i]
	}
	return out
}
