package track

import (
	"errors"

	"github.com/opd-ai/avatarrelay/media"
)

// ErrTrackEnded is returned by VideoTrack.Recv after Stop.
var ErrTrackEnded = errors.New("track ended")

// State is the ready state of a track.
type State string

const (
	StateLive  State = "live"
	StateEnded State = "ended"
)

// Track is the lifecycle contract shared by the playback tracks. Start is
// called once the session is ready and is a no-op when repeated.
type Track interface {
	Kind() media.Kind
	Start()
	Stop()
	ReadyState() State
}
