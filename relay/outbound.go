package relay

import (
	"context"

	"github.com/opd-ai/avatarrelay/limits"
	"github.com/opd-ai/avatarrelay/metrics"
	"github.com/opd-ai/avatarrelay/queue"
	"github.com/opd-ai/avatarrelay/room"
	"github.com/sirupsen/logrus"
)

// ChunkSize is the largest speech payload sent in one data message.
const ChunkSize = limits.MaxSpeechChunk

// Split copies b, pads it to an even length with one zero byte and cuts
// it into ChunkSize pieces in order. Only the last piece may be shorter.
func Split(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}

	data := make([]byte, len(b)+len(b)%2)
	copy(data, b)

	chunks := make([][]byte, 0, (len(data)+ChunkSize-1)/ChunkSize)
	for i := 0; i < len(data); i += ChunkSize {
		end := i + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end:end])
	}
	return chunks
}

// Outbound queues speech chunks for a single sender task. The queue is
// unbounded so speech is never silently dropped.
type Outbound struct {
	pending *queue.Unbounded[[]byte]
}

// NewOutbound creates an empty chunk queue.
func NewOutbound() *Outbound {
	return &Outbound{pending: queue.NewUnbounded[[]byte]()}
}

// Enqueue splits b and queues the chunks. It returns the chunk count.
func (o *Outbound) Enqueue(b []byte) int {
	chunks := Split(b)
	for _, c := range chunks {
		o.pending.Push(c)
	}
	return len(chunks)
}

// Pending returns the number of chunks waiting to be sent.
func (o *Outbound) Pending() int { return o.pending.Len() }

// Flush drops every unsent chunk and returns how many were dropped.
func (o *Outbound) Flush() int { return o.pending.Drain() }

// Run forwards queued chunks to sender using unreliable delivery until ctx
// is done. Send failures are logged and counted, never returned.
func (o *Outbound) Run(ctx context.Context, sender room.Sender) error {
	opts := room.SendOptions{Reliability: room.Unreliable}
	for {
		chunk, err := o.pending.Pop(ctx)
		if err != nil {
			return nil
		}

		if err := limits.ValidateSpeechChunk(chunk); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Outbound.Run",
				"size":     len(chunk),
				"error":    err.Error(),
			}).Warn("Skipping invalid speech chunk")
			continue
		}

		if err := sender.Send(ctx, chunk, opts); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.AudioChunkSendErrors.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "Outbound.Run",
				"size":     len(chunk),
				"error":    err.Error(),
			}).Warn("Failed to send speech chunk")
			continue
		}
		metrics.AudioChunksSent.Inc()
	}
}
