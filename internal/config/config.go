package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"authflow-go/internal/auth"
	"authflow-go/internal/session"
)

// Store backends.
const (
	FlowStoreMemory = "memory"
	FlowStoreRedis  = "redis"

	SessionStoreMemory  = "memory"
	SessionStoreSQLite  = "sqlite"
	SessionStoreKeyring = "keyring"
)

const (
	defaultClientID = "local-dev-client"
	defaultLogLevel = "info"
)

// ErrRootRedirectPath is returned when the redirect URI has no path, which
// would put the callback on the home page route.
var ErrRootRedirectPath = errors.New("redirect URI must have a path other than /")

// Config holds all configuration for the application.
type Config struct {
	Auth    AuthConfig    `json:"auth"`
	API     APIConfig     `json:"api"`
	HTTP    HTTPConfig    `json:"http"`
	Flow    FlowConfig    `json:"flow"`
	Session SessionConfig `json:"session"`

	LogLevel string `json:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
}

// AuthConfig is the OAuth client registration.
type AuthConfig struct {
	ServerBaseURL   string   `json:"server_base_url" env:"AUTH_SERVER_BASE_URL" validate:"required,url"`
	ClientID        string   `json:"client_id" env:"AUTH_CLIENT_ID" validate:"required"`
	RedirectURI     string   `json:"redirect_uri" env:"AUTH_REDIRECT_URI" validate:"required,url"`
	Scopes          []string `json:"scopes" env:"AUTH_SCOPES" envSeparator:" " validate:"min=1,dive,required"`
	ExchangeTimeout Duration `json:"exchange_timeout" env:"AUTH_EXCHANGE_TIMEOUT" validate:"min=1ms"`
	RetryDelay      Duration `json:"retry_delay" env:"AUTH_RETRY_DELAY" validate:"min=0"`
}

// APIConfig locates the resource API used to confirm a login.
type APIConfig struct {
	BaseURL     string `json:"base_url" env:"API_BASE_URL" validate:"omitempty,url"`
	ProfilePath string `json:"profile_path" env:"API_PROFILE_PATH" validate:"startswith=/"`
}

// HTTPConfig holds listener addresses. An empty MetricsAddr disables the
// metrics server.
type HTTPConfig struct {
	Addr        string `json:"addr" env:"HTTP_ADDR" validate:"required"`
	MetricsAddr string `json:"metrics_addr" env:"METRICS_ADDR"`
}

// FlowConfig selects where the live flow attempt is kept.
type FlowConfig struct {
	Store    string   `json:"store" env:"FLOW_STORE" validate:"oneof=memory redis"`
	TTL      Duration `json:"ttl" env:"FLOW_TTL" validate:"min=1s"`
	RedisURL string   `json:"redis_url" env:"REDIS_URL" validate:"required_if=Store redis"`
}

// SessionConfig selects where the session token is kept.
type SessionConfig struct {
	Store          string `json:"store" env:"SESSION_STORE" validate:"oneof=memory sqlite keyring"`
	DBPath         string `json:"db_path" env:"SESSION_DB_PATH" validate:"required_if=Store sqlite"`
	KeyringService string `json:"keyring_service" env:"SESSION_KEYRING_SERVICE"`
	Slot           string `json:"slot" env:"SESSION_SLOT" validate:"required"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		return d.UnmarshalText([]byte(value))
	default:
		return fmt.Errorf("invalid duration")
	}
}

// UnmarshalText implements encoding.TextUnmarshaler, used for environment values.
func (d *Duration) UnmarshalText(b []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(b))
	return err
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads configuration from an optional JSON file, overrides it with
// environment variables, fills defaults and validates the result.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Auth.ClientID == "" {
		c.Auth.ClientID = defaultClientID
	}
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = append([]string(nil), auth.DefaultScopes...)
	}
	if c.Auth.ExchangeTimeout.Duration == 0 {
		c.Auth.ExchangeTimeout.Duration = auth.DefaultHTTPTimeout
	}
	if c.Auth.RetryDelay.Duration == 0 {
		c.Auth.RetryDelay.Duration = auth.DefaultRetryDelay
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = c.Auth.ServerBaseURL
	}
	if c.API.ProfilePath == "" {
		c.API.ProfilePath = auth.DefaultProfilePath
	}

	if c.HTTP.Addr == "" && c.Auth.RedirectURI != "" {
		addr, err := listenAddrFor(c.Auth.RedirectURI)
		if err != nil {
			return fmt.Errorf("deriving listen address: %w", err)
		}
		c.HTTP.Addr = addr
	}

	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if c.Flow.Store == "" {
		c.Flow.Store = FlowStoreMemory
	}
	if c.Flow.TTL.Duration == 0 {
		c.Flow.TTL.Duration = auth.DefaultFlowTTL
	}

	if c.Session.Store == "" {
		c.Session.Store = SessionStoreMemory
	}
	if c.Session.KeyringService == "" {
		c.Session.KeyringService = session.DefaultKeyringService
	}
	if c.Session.Slot == "" {
		c.Session.Slot = session.DefaultSlot
	}
	return nil
}

// listenAddrFor returns the host:port the redirect URI points at.
func listenAddrFor(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", errors.New("redirect URI has no host")
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if c.RedirectPath() == "/" {
		return ErrRootRedirectPath
	}
	return nil
}

// AuthFlow returns the client registration used by the authorization flow.
func (c *Config) AuthFlow() auth.Config {
	return auth.Config{
		ServerBaseURL: c.Auth.ServerBaseURL,
		ClientID:      c.Auth.ClientID,
		RedirectURI:   c.Auth.RedirectURI,
		Scopes:        append([]string(nil), c.Auth.Scopes...),
	}
}

// RedirectPath is the path component of the redirect URI, where the host
// serves the callback.
func (c *Config) RedirectPath() string {
	u, err := url.Parse(c.Auth.RedirectURI)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
