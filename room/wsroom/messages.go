package wsroom

import (
	"github.com/opd-ai/avatarrelay/media"
)

const (
	msgJoin              = "join"
	msgJoined            = "joined"
	msgLeave             = "leave"
	msgPublish           = "publish"
	msgError             = "error"
	msgParticipantJoined = "participant_joined"
	msgParticipantLeft   = "participant_left"
	msgStreamEnabled     = "stream_enabled"
	msgStreamDisabled    = "stream_disabled"
)

// Binary frame type prefixes.
const (
	frameMedia byte = 0x01
	frameData  byte = 0x02
)

// Audio and video codec names used in stream announcements.
const (
	CodecL16  = "l16"
	CodecOpus = "opus"
	CodecRaw  = "raw"
)

type controlMessage struct {
	Type string `json:"type"`

	MeetingID     string `json:"meeting_id,omitempty"`
	Name          string `json:"name,omitempty"`
	Token         string `json:"token,omitempty"`
	PeerID        string `json:"peer_id,omitempty"`
	MicEnabled    bool   `json:"mic_enabled,omitempty"`
	WebcamEnabled bool   `json:"webcam_enabled,omitempty"`

	ParticipantID string `json:"participant_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`

	StreamID string     `json:"stream_id,omitempty"`
	Kind     media.Kind `json:"kind,omitempty"`
	SSRC     uint32     `json:"ssrc,omitempty"`
	Codec    string     `json:"codec,omitempty"`
	Width    int        `json:"width,omitempty"`
	Height   int        `json:"height,omitempty"`

	Message string `json:"message,omitempty"`
}
