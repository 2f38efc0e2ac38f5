package room

import (
	"context"
	"errors"

	"github.com/opd-ai/avatarrelay/media"
)

// ErrStreamClosed is returned by Stream.Recv once the stream is disabled or
// its participant has left.
var ErrStreamClosed = errors.New("room: stream closed")

// Reliability selects the delivery mode of a data message.
type Reliability int

const (
	// Reliable delivery is ordered and retransmitted.
	Reliable Reliability = iota
	// Unreliable delivery may drop or reorder messages.
	Unreliable
)

func (r Reliability) String() string {
	switch r {
	case Reliable:
		return "reliable"
	case Unreliable:
		return "unreliable"
	default:
		return "unknown"
	}
}

// SendOptions configures a single Send call.
type SendOptions struct {
	Reliability Reliability
}

// JoinConfig describes how the local participant joins a room.
type JoinConfig struct {
	MeetingID     string
	Name          string
	Token         string
	MicEnabled    bool
	WebcamEnabled bool
}

// Sender delivers data messages to the room.
type Sender interface {
	// Send publishes data to every participant in the room
	Send(ctx context.Context, data []byte, opts SendOptions) error
}

// Room is a joined (or joinable) meeting.
type Room interface {
	Sender

	// Join connects the local participant to the meeting
	Join(ctx context.Context, cfg JoinConfig) error

	// Leave disconnects the local participant. Calling it twice is a no-op.
	Leave() error

	// AddEventListener registers h for participant events
	AddEventListener(h EventHandler)
}

// EventHandler receives room-level participant events.
type EventHandler interface {
	OnParticipantJoined(p Participant)
	OnParticipantLeft(p Participant)
}

// Participant is a remote member of the room.
type Participant interface {
	ID() string
	DisplayName() string

	// AddEventListener registers h for this participant's stream events
	AddEventListener(h ParticipantHandler)
}

// ParticipantHandler receives stream events of a single participant.
type ParticipantHandler interface {
	OnStreamEnabled(s Stream)
	OnStreamDisabled(s Stream)
}

// Stream is a per-kind media stream published by a participant.
type Stream interface {
	ID() string
	Kind() media.Kind

	// Recv blocks until the next frame arrives or ctx is done.
	Recv(ctx context.Context) (media.Frame, error)
}

// AudioSource produces paced audio frames for publishing.
type AudioSource interface {
	Recv(ctx context.Context) *media.AudioFrame
}

// VideoSource produces paced video frames for publishing.
type VideoSource interface {
	Recv(ctx context.Context) (*media.VideoFrame, error)
}

// Publisher is implemented by rooms that can publish local tracks.
type Publisher interface {
	// Publish pulls from the sources and forwards frames to the room until
	// ctx is done.
	Publish(ctx context.Context, audio AudioSource, video VideoSource) error
}
