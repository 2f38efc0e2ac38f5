package wsroom

import (
	"context"
	"fmt"
	"sync"

	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/metrics"
	"github.com/opd-ai/avatarrelay/room"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// streamBuffer is the number of decoded frames a stream holds for Recv.
const streamBuffer = 32

type participant struct {
	id          string
	displayName string

	mu       sync.Mutex
	handlers []room.ParticipantHandler
	streams  []*stream
}

func newParticipant(id, displayName string) *participant {
	return &participant{id: id, displayName: displayName}
}

func (p *participant) ID() string          { return p.id }
func (p *participant) DisplayName() string { return p.displayName }

// AddEventListener implements room.Participant. Open streams are replayed
// to the new listener.
func (p *participant) AddEventListener(h room.ParticipantHandler) {
	p.mu.Lock()
	p.handlers = append(p.handlers, h)
	existing := append([]*stream(nil), p.streams...)
	p.mu.Unlock()

	for _, s := range existing {
		if !s.isClosed() {
			h.OnStreamEnabled(s)
		}
	}
}

func (p *participant) enable(s *stream) {
	p.mu.Lock()
	p.streams = append(p.streams, s)
	handlers := append([]room.ParticipantHandler(nil), p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h.OnStreamEnabled(s)
	}
}

func (p *participant) disable(s *stream) {
	s.close()

	p.mu.Lock()
	handlers := append([]room.ParticipantHandler(nil), p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h.OnStreamDisabled(s)
	}
}

func (p *participant) closeStreams() {
	p.mu.Lock()
	streams := append([]*stream(nil), p.streams...)
	p.mu.Unlock()
	for _, s := range streams {
		s.close()
	}
}

type stream struct {
	id     string
	kind   media.Kind
	owner  *participant
	width  int
	height int

	decoder   audioDecoder
	assembler assembler

	frames    chan media.Frame
	closeOnce sync.Once
	closed    chan struct{}
}

func newStream(owner *participant, msg controlMessage) (*stream, error) {
	s := &stream{
		id:     msg.StreamID,
		kind:   msg.Kind,
		owner:  owner,
		width:  msg.Width,
		height: msg.Height,
		frames: make(chan media.Frame, streamBuffer),
		closed: make(chan struct{}),
	}

	switch msg.Kind {
	case media.KindAudio:
		dec, err := newAudioDecoder(msg.Codec)
		if err != nil {
			return nil, err
		}
		s.decoder = dec
	case media.KindVideo:
	default:
		return nil, fmt.Errorf("unknown stream kind %q", msg.Kind)
	}
	return s, nil
}

func (s *stream) ID() string       { return s.id }
func (s *stream) Kind() media.Kind { return s.kind }

// Recv implements room.Stream.
func (s *stream) Recv(ctx context.Context) (media.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		return nil, room.ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handlePacket runs on the read loop; decoding failures drop the packet.
func (s *stream) handlePacket(pkt *rtp.Packet) {
	var frame media.Frame

	switch s.kind {
	case media.KindAudio:
		f, err := s.decoder.decode(pkt.Payload)
		if err != nil {
			metrics.FramesDropped.WithLabelValues(string(s.kind), "decode").Inc()
			logrus.WithFields(logrus.Fields{
				"function":  "stream.handlePacket",
				"stream_id": s.id,
				"error":     err.Error(),
			}).Debug("Dropping undecodable audio packet")
			return
		}
		f.PTS = int64(pkt.Timestamp)
		frame = f
	case media.KindVideo:
		payload, complete := s.assembler.push(pkt)
		if !complete {
			return
		}
		frame = &media.VideoFrame{
			PTS:      int64(pkt.Timestamp),
			TimeBase: media.VideoTimeBase,
			Width:    s.width,
			Height:   s.height,
			Payload:  payload,
		}
	}

	select {
	case <-s.closed:
	case s.frames <- frame:
	default:
		metrics.FramesDropped.WithLabelValues(string(s.kind), "overflow").Inc()
	}
}

func (s *stream) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
