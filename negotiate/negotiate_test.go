package negotiate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opd-ai/avatarrelay/config"
	"github.com/opd-ai/avatarrelay/provision"
	"github.com/opd-ai/avatarrelay/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = provision.RoomCredentials{
	RoomID:       "room-1",
	AgentToken:   "agent-token",
	BackendToken: "backend-token",
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	var cerr *config.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"AVATARIO_API_KEY"}, cerr.Missing)
}

func TestNewDefaultsBaseURL(t *testing.T) {
	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestNegotiatePayload(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sdk/start-session", r.URL.Path)
		assert.Equal(t, "avatar-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"session_id":"s-1"}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "avatar-key", BaseURL: srv.URL + "/api/sdk/"})
	require.NoError(t, err)

	require.NoError(t, c.Negotiate(context.Background(), VideoInfo{AvatarFaceID: "face-x"}, testCreds))

	assert.Equal(t, "backend_participant", payload["agent_id"])
	assert.Equal(t, map[string]any{"url": "room-1", "token": "backend-token"}, payload["transport"])
	assert.Equal(t, "face-x", payload["avatario_face_id"])
	assert.Equal(t, float64(1280), payload["video_width"])
	assert.Equal(t, float64(720), payload["video_height"])
	_, hasBackground := payload["custom_background_url"]
	assert.False(t, hasBackground)
}

func TestNegotiateBackgroundURL(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	bg := "https://cdn.example.com/bg.png"
	info := DefaultVideoInfo("face-y")
	info.BackgroundURL = &bg
	info.Width = 640
	info.Height = 360

	require.NoError(t, c.Negotiate(context.Background(), info, testCreds))
	assert.Equal(t, bg, payload["custom_background_url"])
	assert.Equal(t, float64(640), payload["video_width"])
	assert.Equal(t, float64(360), payload["video_height"])
}

func TestNegotiateFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.Negotiate(context.Background(), DefaultVideoInfo("face"), testCreds)
	require.Error(t, err)

	var nerr *NegotiationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "room-1", nerr.RoomID)

	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
}

func TestVideoInfoValidate(t *testing.T) {
	err := VideoInfo{}.Validate()
	var cerr *config.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"AvatarFaceID"}, cerr.Missing)

	bad := "::not a url"
	err = VideoInfo{AvatarFaceID: "f", BackgroundURL: &bad}.Validate()
	require.True(t, errors.As(err, &cerr))
	assert.Len(t, cerr.Invalid, 1)

	assert.NoError(t, DefaultVideoInfo("f").Validate())
}
