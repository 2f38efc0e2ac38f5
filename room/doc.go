// Package room defines the meeting transport the relay consumes.
//
// A Room is joined once per session. Listeners registered with
// AddEventListener learn about remote participants; a participant's
// listeners learn about the media streams it enables. Streams deliver
// decoded media.Frame values through a context-aware Recv. Data is sent to
// the room with Send using either reliable or unreliable delivery.
//
// Two implementations ship with the module: room/sim, an in-memory room for
// tests and demos, and room/wsroom, a client for a websocket media bridge.
package room
