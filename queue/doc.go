// Package queue provides the FIFO buffers that carry frames and speech
// chunks between the relay goroutines and the playback tracks.
//
// Bounded is channel-backed and evicts its oldest element when a push
// would exceed capacity, so len never exceeds cap and surviving elements
// keep their order. Unbounded never drops and is used where loss is not
// acceptable.
package queue
