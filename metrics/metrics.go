// Package metrics exposes Prometheus collectors for the media relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarrelay_frames_relayed_total",
			Help: "Frames received from the backend participant and queued for playback",
		},
		[]string{"kind"},
	)

	FramesEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarrelay_frames_evicted_total",
			Help: "Frames dropped because a bounded queue was full",
		},
		[]string{"queue"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarrelay_frames_dropped_total",
			Help: "Frames discarded because they could not be processed",
		},
		[]string{"kind", "reason"},
	)

	SilenceFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarrelay_audio_silence_frames_total",
			Help: "Silence frames substituted on audio underrun",
		},
	)

	AudioChunksSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarrelay_audio_chunks_sent_total",
			Help: "Speech chunks forwarded to the rendering backend",
		},
	)

	AudioChunkSendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarrelay_audio_chunk_send_errors_total",
			Help: "Speech chunks the meeting transport failed to send",
		},
	)

	AudioInputDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarrelay_audio_input_dropped_total",
			Help: "Speech buffers ignored because the session was not ready",
		},
	)

	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarrelay_connect_attempts_total",
			Help: "Provision, negotiate and join attempts by result",
		},
		[]string{"result"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avatarrelay_active_sessions",
			Help: "Number of sessions in the ready state",
		},
	)
)
