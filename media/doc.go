// Package media defines the audio and video frame types exchanged between
// the meeting transport, the relay queues and the playback tracks.
//
// Audio is fixed at 48 kHz, mono, signed 16-bit little-endian PCM in 20 ms
// frames (960 samples, 1920 bytes). Video frames are opaque decoded images
// stamped on a 90 kHz clock. Frames are handed off by pointer; whoever
// dequeues a frame owns it.
package media
