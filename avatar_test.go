package avatarrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opd-ai/avatarrelay/config"
	"github.com/opd-ai/avatarrelay/media"
	"github.com/opd-ai/avatarrelay/negotiate"
	"github.com/opd-ai/avatarrelay/provision"
	"github.com/opd-ai/avatarrelay/room"
	"github.com/opd-ai/avatarrelay/room/sim"
	"github.com/opd-ai/avatarrelay/timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	calls atomic.Int32
}

func (p *fakeProvisioner) Provision(ctx context.Context) (provision.RoomCredentials, error) {
	n := p.calls.Add(1)
	return provision.RoomCredentials{
		RoomID:       fmt.Sprintf("room-%d", n),
		AgentToken:   "agent-token",
		BackendToken: "backend-token",
	}, nil
}

type fakeNegotiator struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (n *fakeNegotiator) Negotiate(ctx context.Context, info negotiate.VideoInfo, creds provision.RoomCredentials) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.failures < 0 || n.calls <= n.failures {
		return n.err
	}
	return nil
}

func (n *fakeNegotiator) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

var errBackendDown = errors.New("backend down")

func newTestAvatar(t *testing.T, r room.Room, neg *fakeNegotiator, opts ...Option) (*Avatar, *fakeProvisioner) {
	t.Helper()
	prov := &fakeProvisioner{}
	opts = append([]Option{WithProvisioner(prov), WithNegotiator(neg)}, opts...)
	a, err := New(nil, r, negotiate.DefaultVideoInfo("X"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, prov
}

func autoJoinRoom() *sim.Room {
	return sim.NewRoom(&sim.Config{AutoJoinName: negotiate.AgentID})
}

func connectWithTimeout(t *testing.T, a *Avatar) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.Connect(ctx)
}

func TestConnectEndToEnd(t *testing.T) {
	roomSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, "system-token", r.Header.Get("authorization"))
		_, _ = w.Write([]byte(`{"roomId":"room-e2e"}`))
	}))
	defer roomSrv.Close()

	var negotiated map[string]any
	avatarSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/start-session", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&negotiated))
		w.WriteHeader(http.StatusOK)
	}))
	defer avatarSrv.Close()

	cfg := &config.Config{
		AvatarioAPIKey:       "avatar-key",
		AvatarioBaseURL:      avatarSrv.URL,
		RoomServiceEndpoint:  roomSrv.URL,
		RoomServiceAPIKey:    "room-key",
		RoomServiceSecret:    "secret",
		RoomServiceAuthToken: "system-token",
		LogLevel:             "info",
	}

	r := autoJoinRoom()
	a, err := New(cfg, r, negotiate.VideoInfo{AvatarFaceID: "X"})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, connectWithTimeout(t, a))
	assert.Equal(t, StateReady, a.State())
	assert.Equal(t, "X", negotiated["avatario_face_id"])
	sessionTransport, ok := negotiated["transport"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "room-e2e", sessionTransport["url"])
	assert.NotEmpty(t, sessionTransport["token"])

	calls := r.JoinCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "room-e2e", calls[0].MeetingID)
	assert.Equal(t, AgentName, calls[0].Name)
	assert.NotEmpty(t, calls[0].Token)

	// both tracks produce frames with empty queues
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first := a.AudioTrack().Recv(ctx)
	second := a.AudioTrack().Recv(ctx)
	assert.True(t, first.IsSilent())
	assert.Equal(t, int64(0), first.PTS)
	assert.Equal(t, int64(960), second.PTS)

	backend, found := r.Participant(negotiate.AgentID)
	require.True(t, found)
	video := backend.EnableStream(media.KindVideo)
	audio := backend.EnableStream(media.KindAudio)

	frame := &media.VideoFrame{Width: 1280, Height: 720, Payload: []byte{1}}
	require.True(t, video.Push(frame))
	got, err := a.VideoTrack().Recv(ctx)
	require.NoError(t, err)
	assert.Same(t, frame, got)

	tone := media.AudioFrameFromPCM(make([]byte, media.AudioFrameBytes))
	tone.Payload[0] = 42
	require.True(t, audio.Push(tone))
	assert.Eventually(t, func() bool { return a.AudioTrack().Buffered() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, byte(42), a.AudioTrack().Recv(ctx).Payload[0])

	require.NoError(t, a.Close())
	waitErr := make(chan error, 1)
	go func() { waitErr <- a.Wait() }()
	select {
	case err := <-waitErr:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("background tasks did not stop after Close")
	}
}

func TestConnectRetryExhausted(t *testing.T) {
	clock := timing.NewFakeClock(time.Now())
	neg := &fakeNegotiator{failures: -1, err: errBackendDown}
	r := autoJoinRoom()
	a, prov := newTestAvatar(t, r, neg, WithClock(clock))

	err := connectWithTimeout(t, a)
	require.Error(t, err)

	var exhausted *ConnectionExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errBackendDown)

	assert.Equal(t, 3, neg.Calls())
	assert.Equal(t, int32(3), prov.calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.Sleeps())
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, 0, a.RetriesRemaining())
	assert.Empty(t, r.JoinCalls())
}

func TestConnectSucceedsOnSecondAttempt(t *testing.T) {
	clock := timing.NewFakeClock(time.Now())
	neg := &fakeNegotiator{failures: 1, err: errBackendDown}
	a, _ := newTestAvatar(t, autoJoinRoom(), neg, WithClock(clock))

	require.NoError(t, connectWithTimeout(t, a))
	assert.Equal(t, 2, neg.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second}, clock.Sleeps())
	assert.Equal(t, StateReady, a.State())
	assert.Equal(t, 2, a.RetriesRemaining())
}

func TestConnectRetriesFailedJoin(t *testing.T) {
	clock := timing.NewFakeClock(time.Now())
	r := sim.NewRoom(&sim.Config{FailJoins: 1, AutoJoinName: negotiate.AgentID})
	neg := &fakeNegotiator{}
	a, _ := newTestAvatar(t, r, neg, WithClock(clock))

	require.NoError(t, connectWithTimeout(t, a))
	assert.Equal(t, 2, neg.Calls())

	calls := r.JoinCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "room-2", calls[1].MeetingID, "each attempt provisions a fresh room")
}

func TestConnectWaitsForBackendParticipant(t *testing.T) {
	r := sim.NewRoom(nil)
	a, _ := newTestAvatar(t, r, &fakeNegotiator{})

	done := make(chan error, 1)
	go func() { done <- a.Connect(context.Background()) }()

	assert.Eventually(t, r.Joined, time.Second, 5*time.Millisecond)
	r.AddParticipant("viewer", "someone_else")

	select {
	case <-done:
		t.Fatal("Connect returned before the backend joined")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, StateNegotiating, a.State())

	r.AddParticipant("backend", negotiate.AgentID)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Connect did not return after the backend joined")
	}
	assert.Equal(t, StateReady, a.State())
}

func TestConnectCancelledWhileWaiting(t *testing.T) {
	r := sim.NewRoom(nil)
	a, _ := newTestAvatar(t, r, &fakeNegotiator{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Connect(ctx) }()

	assert.Eventually(t, r.Joined, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, StateClosed, a.State())
	assert.False(t, r.Joined(), "closing leaves the room")
}

func TestCloseWhileConnecting(t *testing.T) {
	r := sim.NewRoom(nil)
	a, _ := newTestAvatar(t, r, &fakeNegotiator{})

	done := make(chan error, 1)
	go func() { done <- a.Connect(context.Background()) }()

	assert.Eventually(t, r.Joined, time.Second, 5*time.Millisecond)
	require.NoError(t, a.Close())
	assert.ErrorIs(t, <-done, ErrClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	r := autoJoinRoom()
	a, _ := newTestAvatar(t, r, &fakeNegotiator{})
	require.NoError(t, connectWithTimeout(t, a))

	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())

	select {
	case <-a.Done():
	default:
		t.Fatal("kill latch not set")
	}
	assert.Equal(t, StateClosed, a.State())
	assert.False(t, r.Joined())
	assert.ErrorIs(t, a.Connect(context.Background()), ErrClosed)
	assert.NoError(t, a.Wait())
}

func TestConnectTwice(t *testing.T) {
	a, _ := newTestAvatar(t, autoJoinRoom(), &fakeNegotiator{})
	require.NoError(t, connectWithTimeout(t, a))
	assert.ErrorIs(t, a.Connect(context.Background()), ErrAlreadyConnected)
}

func TestHandleAudioInput(t *testing.T) {
	r := autoJoinRoom()
	a, _ := newTestAvatar(t, r, &fakeNegotiator{}, WithSpeechIdleTimeout(30*time.Millisecond))

	a.HandleAudioInput(make([]byte, 100))
	assert.False(t, a.IsSpeaking())

	require.NoError(t, connectWithTimeout(t, a))
	a.HandleAudioInput(make([]byte, 13001))
	assert.True(t, a.IsSpeaking())

	assert.Eventually(t, func() bool { return len(r.GetDeliveryLog()) == 3 }, time.Second, 5*time.Millisecond)
	log := r.GetDeliveryLog()
	assert.Equal(t, []int{6000, 6000, 1002}, []int{len(log[0].Data), len(log[1].Data), len(log[2].Data)})
	for _, rec := range log {
		assert.Equal(t, room.Unreliable, rec.Reliability)
	}

	assert.Eventually(t, func() bool { return !a.IsSpeaking() }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Close())
	a.HandleAudioInput(make([]byte, 100))
	assert.Len(t, r.GetDeliveryLog(), 3)
}

func TestSpeakingFlagFollowsClock(t *testing.T) {
	clock := timing.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	a, _ := newTestAvatar(t, autoJoinRoom(), &fakeNegotiator{}, WithClock(clock))
	require.NoError(t, connectWithTimeout(t, a))

	a.HandleAudioInput(make([]byte, 100))
	assert.True(t, a.IsSpeaking())

	clock.Advance(SpeechIdleTimeout - time.Millisecond)
	assert.True(t, a.IsSpeaking())

	// New speech re-arms the idle timer.
	a.HandleAudioInput(make([]byte, 100))
	clock.Advance(2 * time.Millisecond)
	assert.True(t, a.IsSpeaking())
	assert.Equal(t, 1, clock.PendingTimers())

	clock.Advance(SpeechIdleTimeout)
	assert.False(t, a.IsSpeaking())
	assert.Zero(t, clock.PendingTimers())
}

func TestInterrupt(t *testing.T) {
	a, _ := newTestAvatar(t, autoJoinRoom(), &fakeNegotiator{})
	require.NoError(t, connectWithTimeout(t, a))

	for i := 0; i < 4; i++ {
		a.AudioTrack().AddFrame(media.NewSilenceFrame())
	}
	a.HandleAudioInput(make([]byte, 100))

	frames, _ := a.Interrupt()
	assert.Equal(t, 4, frames)
	assert.Zero(t, a.AudioTrack().Buffered())
	assert.False(t, a.IsSpeaking())
}

func TestNewValidation(t *testing.T) {
	r := sim.NewRoom(nil)

	_, err := New(nil, r, negotiate.DefaultVideoInfo("X"))
	var cerr *config.ConfigError
	require.True(t, errors.As(err, &cerr))

	_, err = New(&config.Config{}, r, negotiate.DefaultVideoInfo("X"))
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Missing, "AVATARIO_API_KEY")

	_, err = New(nil, r, negotiate.VideoInfo{}, WithProvisioner(&fakeProvisioner{}), WithNegotiator(&fakeNegotiator{}))
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"AvatarFaceID"}, cerr.Missing)

	_, err = New(nil, nil, negotiate.DefaultVideoInfo("X"))
	assert.Error(t, err)
}
