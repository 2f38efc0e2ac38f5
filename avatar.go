package avatarrelay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/avatarrelay/config"
	"github.com/opd-ai/avatarrelay/latch"
	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/metrics"
	"github.com/opd-ai/avatarrelay/negotiate"
	"github.com/opd-ai/avatarrelay/provision"
	"github.com/opd-ai/avatarrelay/queue"
	"github.com/opd-ai/avatarrelay/relay"
	"github.com/opd-ai/avatarrelay/room"
	"github.com/opd-ai/avatarrelay/timing"
	"github.com/opd-ai/avatarrelay/track"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// AgentName is the display name of the local participant.
	AgentName = "AgentParticipant"

	inboundAudioCapacity = 10
	inboundVideoCapacity = 2
)

// Avatar is one avatar session: its queues, kill latch, tracks and state
// machine are created together and torn down together by Close.
type Avatar struct {
	room        room.Room
	info        negotiate.VideoInfo
	provisioner Provisioner
	negotiator  Negotiator
	clock       timing.Clock
	httpClient  *http.Client

	retryBudget  int
	retryBackoff time.Duration
	speechIdle   time.Duration

	sessionID string
	state     *stateMachine

	kill          *latch.Latch
	backendJoined *latch.Latch
	ready         atomic.Bool
	joined        atomic.Bool
	closeOnce     sync.Once

	inAudio    *queue.Bounded[*media.AudioFrame]
	inVideo    *queue.Bounded[*media.VideoFrame]
	inbound    *relay.Inbound
	outbound   *relay.Outbound
	audioTrack *track.AudioTrack
	videoTrack *track.VideoTrack

	runCtx    context.Context
	runCancel context.CancelFunc
	group     *errgroup.Group

	speechMu    sync.Mutex
	speechTimer timing.Timer
	speechGen   uint64
	speaking    bool
}

// New creates an unconnected session that will join r and render info.
// Service clients are built from cfg unless supplied through options; cfg
// may be nil only when both are supplied.
func New(cfg *config.Config, r room.Room, info negotiate.VideoInfo, opts ...Option) (*Avatar, error) {
	if r == nil {
		return nil, errors.New("avatarrelay: room is required")
	}

	a := &Avatar{
		room:         r,
		clock:        timing.SystemClock{},
		retryBudget:  DefaultRetryBudget,
		retryBackoff: RetryBackoff,
		speechIdle:   SpeechIdleTimeout,
		sessionID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(a)
	}

	info = info.WithDefaults()
	if err := info.Validate(); err != nil {
		return nil, err
	}
	a.info = info

	if err := a.buildClients(cfg); err != nil {
		return nil, err
	}

	a.state = newStateMachine(a.retryBudget)
	a.kill = latch.New()
	a.backendJoined = latch.New()
	a.inAudio = queue.MustBounded[*media.AudioFrame](inboundAudioCapacity)
	a.inVideo = queue.MustBounded[*media.VideoFrame](inboundVideoCapacity)
	a.inbound = relay.NewInbound(a.inAudio, a.inVideo, a.kill)
	a.outbound = relay.NewOutbound()
	a.audioTrack = track.NewAudioTrack(a.clock)
	a.videoTrack = track.NewVideoTrack(a.clock)

	runCtx, runCancel := a.kill.Context(context.Background())
	a.group, a.runCtx = errgroup.WithContext(runCtx)
	a.runCancel = runCancel

	logrus.WithFields(logrus.Fields{
		"function":   "New",
		"session_id": a.sessionID,
		"face_id":    info.AvatarFaceID,
		"width":      info.Width,
		"height":     info.Height,
	}).Info("Created avatar session")

	return a, nil
}

func (a *Avatar) buildClients(cfg *config.Config) error {
	if a.provisioner != nil && a.negotiator != nil {
		return nil
	}
	if cfg == nil {
		return &config.ConfigError{Missing: []string{"config"}}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if a.provisioner == nil {
		p, err := provision.New(provision.Config{
			Endpoint:   cfg.RoomServiceEndpoint,
			APIKey:     cfg.RoomServiceAPIKey,
			Secret:     cfg.RoomServiceSecret,
			AuthToken:  cfg.RoomServiceAuthToken,
			HTTPClient: a.httpClient,
			Clock:      a.clock,
		})
		if err != nil {
			return err
		}
		a.provisioner = p
	}
	if a.negotiator == nil {
		n, err := negotiate.New(negotiate.Config{
			APIKey:     cfg.AvatarioAPIKey,
			BaseURL:    cfg.AvatarioBaseURL,
			HTTPClient: a.httpClient,
		})
		if err != nil {
			return err
		}
		a.negotiator = n
	}
	return nil
}

// Connect establishes the session and blocks until the backend participant
// has joined the room. Cancelling ctx or calling Close aborts it and closes
// the session.
func (a *Avatar) Connect(ctx context.Context) error {
	if err := a.state.transition(StateNegotiating); err != nil {
		if state, _ := a.state.current(); state == StateClosed {
			return ErrClosed
		}
		return ErrAlreadyConnected
	}

	logger := logrus.WithFields(logrus.Fields{
		"function":   "Connect",
		"session_id": a.sessionID,
	})
	logger.Info("Connecting avatar session")

	ctx, cancel := a.kill.Context(ctx)
	defer cancel()

	a.videoTrack.SetSharedStartTime(a.clock.Now())
	a.room.AddEventListener(room.EventHandlerFuncs{
		Joined: a.onParticipantJoined,
		Left:   a.onParticipantLeft,
	})

	if err := a.establish(ctx); err != nil {
		return a.abort(err)
	}

	logger.Info("Waiting for backend participant")
	if err := a.backendJoined.Wait(ctx); err != nil {
		return a.abort(err)
	}

	if err := a.state.transition(StateReady); err != nil {
		return a.abort(err)
	}
	a.ready.Store(true)
	metrics.ActiveSessions.Inc()

	a.videoTrack.Start()
	a.audioTrack.Start()

	a.group.Go(func() error { return a.pumpAudio(a.runCtx) })
	a.group.Go(func() error { return a.pumpVideo(a.runCtx) })
	a.group.Go(func() error { return a.outbound.Run(a.runCtx, a.room) })

	logger.Info("Avatar session ready")
	return nil
}

// establish runs the provision, negotiate and join unit within the retry
// budget.
func (a *Avatar) establish(ctx context.Context) error {
	var last error
	for attempt := 1; ; attempt++ {
		err := a.attempt(ctx)
		if err == nil {
			metrics.ConnectAttempts.WithLabelValues("success").Inc()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.ConnectAttempts.WithLabelValues("failure").Inc()
		last = err

		remaining, serr := a.state.degrade()
		if serr != nil {
			return serr
		}

		logrus.WithFields(logrus.Fields{
			"function":   "establish",
			"session_id": a.sessionID,
			"attempt":    attempt,
			"remaining":  remaining,
			"error":      err.Error(),
		}).Warn("Connection attempt failed")

		if remaining == 0 {
			return &ConnectionExhaustedError{Attempts: attempt, Last: last}
		}
		if err := a.clock.Sleep(ctx, a.retryBackoff); err != nil {
			return err
		}
		if err := a.state.transition(StateNegotiating); err != nil {
			return err
		}
	}
}

func (a *Avatar) attempt(ctx context.Context) error {
	creds, err := a.provisioner.Provision(ctx)
	if err != nil {
		return err
	}
	if err := a.negotiator.Negotiate(ctx, a.info, creds); err != nil {
		return err
	}
	if err := a.room.Join(ctx, room.JoinConfig{
		MeetingID: creds.RoomID,
		Name:      AgentName,
		Token:     creds.AgentToken,
	}); err != nil {
		return err
	}
	a.joined.Store(true)

	logrus.WithFields(logrus.Fields{
		"function":   "attempt",
		"session_id": a.sessionID,
		"room_id":    creds.RoomID,
	}).Info("Joined meeting room")
	return nil
}

// abort closes the session after a failed Connect and maps shutdown causes
// to ErrClosed.
func (a *Avatar) abort(err error) error {
	closedByCaller := a.kill.IsSet()
	_ = a.Close()

	var exhausted *ConnectionExhaustedError
	if errors.As(err, &exhausted) {
		logrus.WithFields(logrus.Fields{
			"function":   "Connect",
			"session_id": a.sessionID,
			"attempts":   exhausted.Attempts,
			"error":      exhausted.Last.Error(),
		}).Error("Connection retry budget exhausted")
		return err
	}
	if closedByCaller {
		return ErrClosed
	}
	return err
}

func (a *Avatar) onParticipantJoined(p room.Participant) {
	if p.DisplayName() != negotiate.AgentID {
		logrus.WithFields(logrus.Fields{
			"function":     "onParticipantJoined",
			"session_id":   a.sessionID,
			"display_name": p.DisplayName(),
		}).Debug("Ignoring participant")
		return
	}

	p.AddEventListener(a.inbound.Handler(a.runCtx, a.group.Go))
	if a.backendJoined.Set() {
		logrus.WithFields(logrus.Fields{
			"function":       "onParticipantJoined",
			"session_id":     a.sessionID,
			"participant_id": p.ID(),
		}).Info("Backend participant joined")
	}
}

func (a *Avatar) onParticipantLeft(p room.Participant) {
	if p.DisplayName() == negotiate.AgentID && !a.kill.IsSet() {
		logrus.WithFields(logrus.Fields{
			"function":       "onParticipantLeft",
			"session_id":     a.sessionID,
			"participant_id": p.ID(),
		}).Warn("Backend participant left the room")
	}
}

func (a *Avatar) pumpAudio(ctx context.Context) error {
	for {
		f, err := a.inAudio.Pop(ctx)
		if err != nil {
			return nil
		}
		a.audioTrack.AddFrame(f)
	}
}

func (a *Avatar) pumpVideo(ctx context.Context) error {
	for {
		f, err := a.inVideo.Pop(ctx)
		if err != nil {
			return nil
		}
		a.videoTrack.AddFrame(f)
	}
}

// HandleAudioInput queues synthesized speech for the backend. Input is
// dropped with a warning unless the session is ready.
func (a *Avatar) HandleAudioInput(b []byte) {
	if a.kill.IsSet() || !a.ready.Load() {
		metrics.AudioInputDropped.Inc()
		logrus.WithFields(logrus.Fields{
			"function":   "HandleAudioInput",
			"session_id": a.sessionID,
			"size":       len(b),
			"state":      a.State().String(),
		}).Warn("Cannot send audio, session not ready")
		return
	}
	if len(b) == 0 {
		return
	}

	chunks := a.outbound.Enqueue(b)
	a.markSpeaking()

	logrus.WithFields(logrus.Fields{
		"function":   "HandleAudioInput",
		"session_id": a.sessionID,
		"size":       len(b),
		"chunks":     chunks,
	}).Trace("Queued speech audio")
}

func (a *Avatar) markSpeaking() {
	a.speechMu.Lock()
	defer a.speechMu.Unlock()
	if a.kill.IsSet() {
		return
	}
	a.speaking = true
	if a.speechTimer != nil {
		a.speechTimer.Stop()
	}
	a.speechGen++
	gen := a.speechGen
	a.speechTimer = a.clock.AfterFunc(a.speechIdle, func() {
		a.speechMu.Lock()
		defer a.speechMu.Unlock()
		if a.speechGen == gen {
			a.speaking = false
		}
	})
}

func (a *Avatar) stopSpeaking() {
	a.speechMu.Lock()
	defer a.speechMu.Unlock()
	if a.speechTimer != nil {
		a.speechTimer.Stop()
		a.speechTimer = nil
	}
	a.speechGen++
	a.speaking = false
}

// IsSpeaking reports whether speech was queued within the idle timeout.
func (a *Avatar) IsSpeaking() bool {
	a.speechMu.Lock()
	defer a.speechMu.Unlock()
	return a.speaking
}

// Interrupt discards queued avatar audio and unsent speech. It returns the
// number of audio frames and speech chunks dropped.
func (a *Avatar) Interrupt() (frames, chunks int) {
	frames = a.inAudio.Drain() + a.audioTrack.Interrupt()
	chunks = a.outbound.Flush()
	a.stopSpeaking()

	logrus.WithFields(logrus.Fields{
		"function":   "Interrupt",
		"session_id": a.sessionID,
		"frames":     frames,
		"chunks":     chunks,
	}).Info("Interrupted avatar speech")
	return frames, chunks
}

// Close shuts the session down. It sets the kill latch, stops the tracks
// and leaves the room without waiting for background tasks; use Wait for
// that. Calling Close more than once is a no-op.
func (a *Avatar) Close() error {
	a.closeOnce.Do(func() {
		a.kill.Set()
		a.stopSpeaking()
		if a.ready.Swap(false) {
			metrics.ActiveSessions.Dec()
		}
		prev := a.state.close()

		a.audioTrack.Stop()
		a.videoTrack.Stop()
		a.outbound.Flush()
		a.runCancel()

		if a.joined.Load() {
			if err := a.room.Leave(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function":   "Close",
					"session_id": a.sessionID,
					"error":      err.Error(),
				}).Warn("Failed to leave room")
			}
		}

		logrus.WithFields(logrus.Fields{
			"function":   "Close",
			"session_id": a.sessionID,
			"from_state": prev.String(),
		}).Info("Avatar session closed")
	})
	return nil
}

// Wait blocks until every background task has returned.
func (a *Avatar) Wait() error {
	return a.group.Wait()
}

// AudioTrack returns the paced audio track to publish.
func (a *Avatar) AudioTrack() *track.AudioTrack { return a.audioTrack }

// VideoTrack returns the latest-frame video track to publish.
func (a *Avatar) VideoTrack() *track.VideoTrack { return a.videoTrack }

// State returns the current connection state.
func (a *Avatar) State() ConnectionState {
	state, _ := a.state.current()
	return state
}

// RetriesRemaining returns the unused connection attempts.
func (a *Avatar) RetriesRemaining() int {
	_, retries := a.state.current()
	return retries
}

// SessionID identifies the session in logs.
func (a *Avatar) SessionID() string { return a.sessionID }

// Done is closed once the session is closed.
func (a *Avatar) Done() <-chan struct{} { return a.kill.Done() }
