// Package relay moves media between the meeting and the playback tracks.
//
// Inbound receives frames from the backend participant's streams and
// queues them per kind. Every receive is bounded by ReceiveTimeout so the
// loop observes the session kill latch promptly.
//
// Outbound splits synthesized speech into ChunkSize pieces and forwards them
// to the room over the unreliable data channel from a single sender task.
package relay
