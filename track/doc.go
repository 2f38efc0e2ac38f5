// Package track implements the paced playback tracks that republish the
// avatar's rendered media to the meeting.
//
// AudioTrack emits one 20 ms frame per Recv, sleeping so frames leave at
// real-time cadence and substituting silence when its jitter buffer is
// empty. Its PTS advances by exactly 960 samples per call.
//
// VideoTrack holds only the most recent frame and stamps it with the wall
// clock time elapsed since a shared stream start.
package track
