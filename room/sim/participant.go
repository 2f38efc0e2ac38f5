package sim

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/room"
)

// streamBuffer bounds frames a test may push ahead of the reader.
const streamBuffer = 64

// Participant is a simulated remote participant.
type Participant struct {
	id          string
	displayName string

	mu       sync.Mutex
	handlers []room.ParticipantHandler
	streams  []*Stream
}

func newParticipant(id, displayName string) *Participant {
	return &Participant{id: id, displayName: displayName}
}

func (p *Participant) ID() string          { return p.id }
func (p *Participant) DisplayName() string { return p.displayName }

// AddEventListener implements room.Participant. Streams enabled before the
// listener was added are replayed to it.
func (p *Participant) AddEventListener(h room.ParticipantHandler) {
	p.mu.Lock()
	p.handlers = append(p.handlers, h)
	existing := append([]*Stream(nil), p.streams...)
	p.mu.Unlock()

	for _, s := range existing {
		if !s.isClosed() {
			h.OnStreamEnabled(s)
		}
	}
}

// EnableStream publishes a new stream of the given kind.
func (p *Participant) EnableStream(kind media.Kind) *Stream {
	s := &Stream{
		id:     uuid.NewString(),
		kind:   kind,
		frames: make(chan media.Frame, streamBuffer),
		closed: make(chan struct{}),
	}

	p.mu.Lock()
	p.streams = append(p.streams, s)
	handlers := append([]room.ParticipantHandler(nil), p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h.OnStreamEnabled(s)
	}
	return s
}

// DisableStream closes s and notifies listeners.
func (p *Participant) DisableStream(s *Stream) {
	s.Close()

	p.mu.Lock()
	handlers := append([]room.ParticipantHandler(nil), p.handlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h.OnStreamDisabled(s)
	}
}

func (p *Participant) closeStreams() {
	p.mu.Lock()
	streams := append([]*Stream(nil), p.streams...)
	p.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
}

// Stream is a simulated media stream fed by Push.
type Stream struct {
	id     string
	kind   media.Kind
	frames chan media.Frame

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *Stream) ID() string       { return s.id }
func (s *Stream) Kind() media.Kind { return s.kind }

// Push queues f for delivery. It reports false when the stream is closed or
// its buffer is full.
func (s *Stream) Push(f media.Frame) bool {
	if s.isClosed() {
		return false
	}
	select {
	case s.frames <- f:
		return true
	default:
		return false
	}
}

// Pending returns the number of pushed frames not yet received.
func (s *Stream) Pending() int { return len(s.frames) }

// Recv implements room.Stream. Frames pushed before Close are still
// delivered.
func (s *Stream) Recv(ctx context.Context) (media.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	default:
	}

	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		select {
		case f := <-s.frames:
			return f, nil
		default:
			return nil, room.ErrStreamClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the stream. It is safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
