package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opd-ai/avatarrelay/config"
	"github.com/opd-ai/avatarrelay/timing"
	"github.com/opd-ai/avatarrelay/transport"
	"github.com/sirupsen/logrus"
)

// TokenTTL is the lifetime of every minted access token.
const TokenTTL = 600 * time.Second

// Permissions granted to minted tokens.
var Permissions = []string{"allow_join", "allow_mod"}

// RoomCredentials identifies a room and carries one token per participant.
type RoomCredentials struct {
	RoomID       string
	AgentToken   string
	BackendToken string
}

// Config holds the room service inputs.
type Config struct {
	Endpoint  string
	APIKey    string
	Secret    string
	AuthToken string

	HTTPClient *http.Client
	Clock      timing.Clock
}

// RoomClient creates rooms with a caller supplied authorization token.
type RoomClient struct {
	endpoint string
	client   *transport.Client
}

// NewRoomClient returns a RoomClient for the room service at endpoint.
func NewRoomClient(endpoint string, hc *http.Client) (*RoomClient, error) {
	if err := config.Require(map[string]string{"VIDEOSDK_API_ENDPOINT": endpoint}); err != nil {
		return nil, err
	}
	return &RoomClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   transport.NewClient(hc),
	}, nil
}

// Provisioner creates rooms and mints tokens.
type Provisioner struct {
	*RoomClient

	apiKey    string
	secret    []byte
	authToken string
	clock     timing.Clock
}

// New validates cfg and returns a Provisioner.
func New(cfg Config) (*Provisioner, error) {
	if err := config.Require(map[string]string{
		"VIDEOSDK_API_ENDPOINT":       cfg.Endpoint,
		"BACKEND_VIDEOSDK_API_KEY":    cfg.APIKey,
		"BACKEND_VIDEOSDK_SECRET_KEY": cfg.Secret,
		"BACKEND_VIDEOSDK_AUTH_TOKEN": cfg.AuthToken,
	}); err != nil {
		return nil, err
	}

	rooms, err := NewRoomClient(cfg.Endpoint, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}

	return &Provisioner{
		RoomClient: rooms,
		apiKey:     cfg.APIKey,
		secret:     []byte(cfg.Secret),
		authToken:  cfg.AuthToken,
		clock:      timing.OrDefault(cfg.Clock),
	}, nil
}

// Provision creates a room with the system token and mints an agent token
// and a backend token bound to it.
func (p *Provisioner) Provision(ctx context.Context) (RoomCredentials, error) {
	roomID, err := p.CreateRoom(ctx, p.authToken)
	if err != nil {
		return RoomCredentials{}, err
	}

	agentToken, err := p.MintToken(roomID)
	if err != nil {
		return RoomCredentials{}, fmt.Errorf("failed to mint agent token: %w", err)
	}
	backendToken, err := p.MintToken(roomID)
	if err != nil {
		return RoomCredentials{}, fmt.Errorf("failed to mint backend token: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Provision",
		"room_id":  roomID,
	}).Info("Provisioned room credentials")

	return RoomCredentials{
		RoomID:       roomID,
		AgentToken:   agentToken,
		BackendToken: backendToken,
	}, nil
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

// CreateRoom creates a room authorized by authToken and returns its id.
func (c *RoomClient) CreateRoom(ctx context.Context, authToken string) (string, error) {
	url := c.endpoint + "/rooms"
	body, err := c.client.PostJSON(ctx, "create room", url, map[string]string{
		"authorization": authToken,
	}, struct{}{})
	if err != nil {
		return "", err
	}

	var resp createRoomResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &transport.Error{Op: "create room", URL: url, Body: string(body), Err: fmt.Errorf("%w: %v", transport.ErrMalformedResponse, err)}
	}
	if resp.RoomID == "" {
		return "", &transport.Error{Op: "create room", URL: url, Body: string(body), Err: fmt.Errorf("%w: roomId missing", transport.ErrMalformedResponse)}
	}
	return resp.RoomID, nil
}

// MintToken signs a join+moderate token for roomID that expires after TokenTTL.
func (p *Provisioner) MintToken(roomID string) (string, error) {
	claims := jwt.MapClaims{
		"exp":         p.clock.Now().Add(TokenTTL).Unix(),
		"apikey":      p.apiKey,
		"permissions": Permissions,
		"version":     2,
		"roles":       []string{"rtc"},
		"roomId":      roomID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}
