package wsroom

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/avatarrelay/limits"
	"github.com/pion/rtp"
)

// RTP payload types announced by the bridge.
const (
	PayloadTypeL16   uint8 = 96
	PayloadTypeVideo uint8 = 97
	PayloadTypeOpus  uint8 = 111
)

// maxRTPPayload keeps one packet plus its header and frame prefix within
// the bridge message limit.
const maxRTPPayload = limits.MaxBridgeMessage - 64

// packetizer splits payloads into RTP packets for one outgoing stream.
type packetizer struct {
	ssrc        uint32
	payloadType uint8
	sequence    uint16
}

func newPacketizer(payloadType uint8) (*packetizer, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate SSRC: %w", err)
	}
	return &packetizer{ssrc: binary.BigEndian.Uint32(b), payloadType: payloadType}, nil
}

// packetize returns framed RTP packets for payload. Every packet carries
// timestamp; the marker bit is set on the last one.
func (p *packetizer) packetize(payload []byte, timestamp uint32) ([][]byte, error) {
	var frames [][]byte
	for offset := 0; offset < len(payload) || offset == 0; offset += maxRTPPayload {
		end := offset + maxRTPPayload
		if end > len(payload) {
			end = len(payload)
		}

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         end == len(payload),
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequence,
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload[offset:end],
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
		}
		p.sequence++

		frames = append(frames, append([]byte{frameMedia}, raw...))
		if end == len(payload) {
			break
		}
	}
	return frames, nil
}

// assembler joins the packets of one frame.
type assembler struct {
	active    bool
	timestamp uint32
	buf       []byte
}

// push adds pkt and returns the complete payload once the marked packet
// arrives. A packet with a new timestamp discards an unfinished frame.
func (a *assembler) push(pkt *rtp.Packet) ([]byte, bool) {
	if a.active && pkt.Timestamp != a.timestamp {
		a.buf = a.buf[:0]
	}
	a.active = true
	a.timestamp = pkt.Timestamp
	a.buf = append(a.buf, pkt.Payload...)

	if !pkt.Marker {
		return nil, false
	}
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	a.buf = a.buf[:0]
	a.active = false
	return out, true
}
