package negotiate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/opd-ai/avatarrelay/config"
	"github.com/opd-ai/avatarrelay/provision"
	"github.com/opd-ai/avatarrelay/transport"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the avatar backend API root.
	DefaultBaseURL = config.DefaultAvatarioBaseURL

	// AgentID is the display name the backend uses when it joins the room.
	AgentID = "backend_participant"

	DefaultWidth  = 1280
	DefaultHeight = 720
)

// VideoInfo selects the avatar face and the rendered video geometry.
type VideoInfo struct {
	AvatarFaceID  string  `json:"avatario_face_id" validate:"required"`
	Width         int     `json:"video_width" validate:"gte=0"`
	Height        int     `json:"video_height" validate:"gte=0"`
	BackgroundURL *string `json:"custom_background_url,omitempty" validate:"omitempty,url"`
}

// DefaultVideoInfo returns a 1280x720 VideoInfo for faceID.
func DefaultVideoInfo(faceID string) VideoInfo {
	return VideoInfo{AvatarFaceID: faceID, Width: DefaultWidth, Height: DefaultHeight}
}

// WithDefaults fills zero dimensions.
func (v VideoInfo) WithDefaults() VideoInfo {
	if v.Width == 0 {
		v.Width = DefaultWidth
	}
	if v.Height == 0 {
		v.Height = DefaultHeight
	}
	return v
}

// Validate reports a *config.ConfigError when the face id is missing or a
// field is malformed.
func (v VideoInfo) Validate() error {
	return config.Struct(v)
}

// NegotiationError reports a failed start-session call. It wraps the
// underlying *transport.Error.
type NegotiationError struct {
	RoomID string
	Err    *transport.Error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("avatar session negotiation failed for room %s: %v", e.RoomID, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// Config holds the avatar backend inputs.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to the avatar backend session API.
type Client struct {
	apiKey  string
	baseURL string
	client  *transport.Client
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if err := config.Require(map[string]string{"AVATARIO_API_KEY": cfg.APIKey}); err != nil {
		return nil, err
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		client:  transport.NewClient(cfg.HTTPClient),
	}, nil
}

type sessionTransport struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type startSessionRequest struct {
	AgentID   string           `json:"agent_id"`
	Transport sessionTransport `json:"transport"`
	VideoInfo
}

// Negotiate asks the backend to render info into the room named by creds.
func (c *Client) Negotiate(ctx context.Context, info VideoInfo, creds provision.RoomCredentials) error {
	info = info.WithDefaults()
	if err := info.Validate(); err != nil {
		return err
	}

	req := startSessionRequest{
		AgentID:   AgentID,
		Transport: sessionTransport{URL: creds.RoomID, Token: creds.BackendToken},
		VideoInfo: info,
	}

	body, err := c.client.PostJSON(ctx, "start session", c.baseURL+"/start-session", map[string]string{
		"x-api-key": c.apiKey,
	}, req)
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) {
			return &NegotiationError{RoomID: creds.RoomID, Err: terr}
		}
		return err
	}

	fields := logrus.Fields{
		"function": "Negotiate",
		"room_id":  creds.RoomID,
		"face_id":  info.AvatarFaceID,
	}
	var ack map[string]any
	if len(body) > 0 && json.Unmarshal(body, &ack) == nil {
		for _, key := range []string{"session_id", "status"} {
			if v, ok := ack[key]; ok {
				fields[key] = v
			}
		}
	}
	logrus.WithFields(fields).Info("Avatar session started")
	return nil
}
