// Package wsroom implements room.Room over a websocket connection to a
// media bridge that sits between the relay and the meeting service.
//
// Control messages are JSON text frames carrying a "type" field:
//
//	client -> bridge: join, leave, publish
//	bridge -> client: joined, error, participant_joined, participant_left,
//	                  stream_enabled, stream_disabled
//
// Binary frames start with one type byte. 0x01 frames carry a single RTP
// packet; the SSRC selects the stream announced by stream_enabled (or by
// publish for the local tracks). Audio payloads are either L16 (48 kHz
// mono, network byte order) or Opus. Video payloads are opaque and may be
// split over several packets sharing one timestamp, the last one marked.
// 0x02 frames carry a data message: one reliability byte followed by the
// payload.
package wsroom
