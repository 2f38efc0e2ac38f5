// Package config loads and validates the relay configuration from flags,
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every external input of the relay.
type Config struct {
	AvatarioAPIKey       string `mapstructure:"avatario-api-key" env:"AVATARIO_API_KEY" validate:"required"`
	AvatarioBaseURL      string `mapstructure:"avatario-base-url" env:"AVATARIO_BASE_URL" validate:"required,url"`
	RoomServiceEndpoint  string `mapstructure:"room-service-endpoint" env:"VIDEOSDK_API_ENDPOINT" validate:"required,url"`
	RoomServiceAPIKey    string `mapstructure:"room-service-api-key" env:"BACKEND_VIDEOSDK_API_KEY" validate:"required"`
	RoomServiceSecret    string `mapstructure:"room-service-secret" env:"BACKEND_VIDEOSDK_SECRET_KEY" validate:"required"`
	RoomServiceAuthToken string `mapstructure:"room-service-auth-token" env:"BACKEND_VIDEOSDK_AUTH_TOKEN" validate:"required"`
	PlaygroundAuthToken  string `mapstructure:"playground-auth-token" env:"VIDEOSDK_AUTH_TOKEN"`
	BridgeURL            string `mapstructure:"bridge-url" env:"AVATARRELAY_BRIDGE_URL" validate:"omitempty,url"`
	LogLevel             string `mapstructure:"log-level" env:"AVATARRELAY_LOG_LEVEL" validate:"oneof=trace debug info warn warning error"`
	MetricsAddr          string `mapstructure:"metrics-addr" env:"AVATARRELAY_METRICS_ADDR"`
}

type configVar struct {
	key          string
	envKey       string
	defaultValue string
	usage        string
}

const DefaultAvatarioBaseURL = "https://app.onezot.work/api/sdk"

var vars = []configVar{
	{"avatario-api-key", "AVATARIO_API_KEY", "", "Avatar backend API key"},
	{"avatario-base-url", "AVATARIO_BASE_URL", DefaultAvatarioBaseURL, "Avatar backend base URL"},
	{"room-service-endpoint", "VIDEOSDK_API_ENDPOINT", "", "Room service endpoint URL"},
	{"room-service-api-key", "BACKEND_VIDEOSDK_API_KEY", "", "Room service API key embedded in tokens"},
	{"room-service-secret", "BACKEND_VIDEOSDK_SECRET_KEY", "", "Room service token signing secret"},
	{"room-service-auth-token", "BACKEND_VIDEOSDK_AUTH_TOKEN", "", "Room service system token"},
	{"playground-auth-token", "VIDEOSDK_AUTH_TOKEN", "", "Auth token used to create playground rooms"},
	{"bridge-url", "AVATARRELAY_BRIDGE_URL", "", "Websocket media bridge URL"},
	{"log-level", "AVATARRELAY_LOG_LEVEL", "info", "Logging level"},
	{"metrics-addr", "AVATARRELAY_METRICS_ADDR", "", "Listen address for the Prometheus endpoint"},
}

// BindFlags registers one flag per configuration key on fs.
func BindFlags(fs *pflag.FlagSet) {
	for _, cv := range vars {
		if fs.Lookup(cv.key) == nil {
			fs.String(cv.key, cv.defaultValue, cv.usage)
		}
	}
}

// Load resolves the configuration from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Resolve(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve decodes the configuration from v (flags bound by the caller, then
// environment, then defaults) without validating it. Callers that use only
// part of it check those fields with Require.
func Resolve(v *viper.Viper) (*Config, error) {
	for _, cv := range vars {
		if err := v.BindEnv(cv.key, cv.envKey); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", cv.envKey, err)
		}
		v.SetDefault(cv.key, cv.defaultValue)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks c and returns a *ConfigError naming every missing or
// invalid input.
func (c *Config) Validate() error {
	return Struct(c)
}

// Struct validates any struct carrying `validate` tags and converts
// failures to *ConfigError.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	cerr := &ConfigError{}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			cerr.Missing = append(cerr.Missing, fe.Field())
		} else {
			cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	}
	return cerr
}

// ConfigError reports required inputs that are absent or malformed.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Require returns a *ConfigError listing every name whose value is empty,
// or nil when all are set.
func Require(values map[string]string) error {
	var missing []string
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &ConfigError{Missing: missing}
}
