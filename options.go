package avatarrelay

import (
	"context"
	"net/http"
	"time"

	"github.com/opd-ai/avatarrelay/negotiate"
	"github.com/opd-ai/avatarrelay/provision"
	"github.com/opd-ai/avatarrelay/timing"
)

const (
	// DefaultRetryBudget is the number of connection attempts.
	DefaultRetryBudget = 3

	// RetryBackoff is the fixed pause between connection attempts.
	RetryBackoff = 2 * time.Second

	// SpeechIdleTimeout clears the speaking flag after the last speech input.
	SpeechIdleTimeout = time.Second
)

// Provisioner obtains room credentials. *provision.Provisioner implements it.
type Provisioner interface {
	Provision(ctx context.Context) (provision.RoomCredentials, error)
}

// Negotiator registers a room with the avatar backend. *negotiate.Client
// implements it.
type Negotiator interface {
	Negotiate(ctx context.Context, info negotiate.VideoInfo, creds provision.RoomCredentials) error
}

// Option configures an Avatar.
type Option func(*Avatar)

// WithProvisioner replaces the room service client built from the config.
func WithProvisioner(p Provisioner) Option {
	return func(a *Avatar) { a.provisioner = p }
}

// WithNegotiator replaces the avatar backend client built from the config.
func WithNegotiator(n Negotiator) Option {
	return func(a *Avatar) { a.negotiator = n }
}

// WithClock sets the clock used for pacing, token expiry, retry backoff and
// the speech idle timer.
func WithClock(c timing.Clock) Option {
	return func(a *Avatar) { a.clock = timing.OrDefault(c) }
}

// WithHTTPClient sets the HTTP client of the config-built service clients.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Avatar) { a.httpClient = hc }
}

// WithRetryBudget overrides DefaultRetryBudget. Values below one are
// ignored.
func WithRetryBudget(n int) Option {
	return func(a *Avatar) {
		if n > 0 {
			a.retryBudget = n
		}
	}
}

// WithRetryBackoff overrides RetryBackoff.
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Avatar) {
		if d >= 0 {
			a.retryBackoff = d
		}
	}
}

// WithSpeechIdleTimeout overrides SpeechIdleTimeout.
func WithSpeechIdleTimeout(d time.Duration) Option {
	return func(a *Avatar) {
		if d > 0 {
			a.speechIdle = d
		}
	}
}
