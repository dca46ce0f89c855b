package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authflow-go/internal/auth"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("AUTH_SERVER_BASE_URL", "https://auth.example.com")
	t.Setenv("AUTH_REDIRECT_URI", "http://localhost:8080/auth/callback")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local-dev-client", cfg.Auth.ClientID)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Auth.Scopes)
	assert.Equal(t, 30*time.Second, cfg.Auth.ExchangeTimeout.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Auth.RetryDelay.Duration)
	assert.Equal(t, "https://auth.example.com", cfg.API.BaseURL)
	assert.Equal(t, "/api/users/me", cfg.API.ProfilePath)
	assert.Equal(t, "localhost:8080", cfg.HTTP.Addr)
	assert.Empty(t, cfg.HTTP.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, FlowStoreMemory, cfg.Flow.Store)
	assert.Equal(t, 10*time.Minute, cfg.Flow.TTL.Duration)
	assert.Equal(t, SessionStoreMemory, cfg.Session.Store)
	assert.Equal(t, "authflow", cfg.Session.KeyringService)
	assert.Equal(t, "default", cfg.Session.Slot)
	assert.Equal(t, "/auth/callback", cfg.RedirectPath())
}

func TestLoad_FromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	configJSON := `{
		"auth": {
			"server_base_url": "https://auth.example.com",
			"client_id": "file-client",
			"redirect_uri": "https://app.example.com/oauth/return",
			"scopes": ["openid"],
			"exchange_timeout": "5s"
		},
		"api": {"base_url": "https://api.example.com"},
		"http": {"metrics_addr": ":9090"},
		"flow": {"store": "redis", "redis_url": "redis://localhost:6379/0", "ttl": "2m"},
		"session": {"store": "sqlite", "db_path": "/tmp/session.db"},
		"log_level": "debug"
	}`
	require.NoError(t, os.WriteFile(configPath, []byte(configJSON), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "file-client", cfg.Auth.ClientID)
	assert.Equal(t, []string{"openid"}, cfg.Auth.Scopes)
	assert.Equal(t, 5*time.Second, cfg.Auth.ExchangeTimeout.Duration)
	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, "app.example.com:443", cfg.HTTP.Addr)
	assert.Equal(t, ":9090", cfg.HTTP.MetricsAddr)
	assert.Equal(t, FlowStoreRedis, cfg.Flow.Store)
	assert.Equal(t, 2*time.Minute, cfg.Flow.TTL.Duration)
	assert.Equal(t, SessionStoreSQLite, cfg.Session.Store)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/oauth/return", cfg.RedirectPath())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	configJSON := `{"auth": {"server_base_url": "https://file.example.com", "redirect_uri": "http://localhost:8080/cb", "client_id": "file-client"}}`
	require.NoError(t, os.WriteFile(configPath, []byte(configJSON), 0644))

	t.Setenv("AUTH_CLIENT_ID", "env-client")
	t.Setenv("AUTH_SCOPES", "user:profile user:inference")
	t.Setenv("AUTH_RETRY_DELAY", "250ms")
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com", cfg.Auth.ServerBaseURL)
	assert.Equal(t, "env-client", cfg.Auth.ClientID)
	assert.Equal(t, []string{"user:profile", "user:inference"}, cfg.Auth.Scopes)
	assert.Equal(t, 250*time.Millisecond, cfg.Auth.RetryDelay.Duration)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
}

func TestLoad_Errors(t *testing.T) {
	required := map[string]string{
		"AUTH_SERVER_BASE_URL": "https://auth.example.com",
		"AUTH_REDIRECT_URI":    "http://localhost:8080/auth/callback",
	}

	tests := []struct {
		name string
		omit string
		env  map[string]string
	}{
		{name: "missing server base URL", omit: "AUTH_SERVER_BASE_URL"},
		{name: "missing redirect URI", omit: "AUTH_REDIRECT_URI"},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "unknown flow store", env: map[string]string{"FLOW_STORE": "etcd"}},
		{name: "redis without url", env: map[string]string{"FLOW_STORE": "redis"}},
		{name: "sqlite without path", env: map[string]string{"SESSION_STORE": "sqlite"}},
		{name: "bad duration", env: map[string]string{"AUTH_EXCHANGE_TIMEOUT": "soon"}},
		{name: "redirect URI without path", env: map[string]string{"AUTH_REDIRECT_URI": "http://127.0.0.1:8080"}},
		{name: "redirect URI at root", env: map[string]string{"AUTH_REDIRECT_URI": "http://127.0.0.1:8080/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range required {
				if k != tt.omit {
					t.Setenv(k, v)
				}
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_RootRedirectPath(t *testing.T) {
	t.Setenv("AUTH_SERVER_BASE_URL", "https://auth.example.com")
	t.Setenv("AUTH_REDIRECT_URI", "http://127.0.0.1:8080")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrRootRedirectPath)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load("non-existent.json")
	assert.Error(t, err)

	invalidPath := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(invalidPath, []byte("{invalid json}"), 0644))
	_, err = Load(invalidPath)
	assert.Error(t, err)
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration)

	require.NoError(t, d.UnmarshalJSON([]byte(`1000000`)))
	assert.Equal(t, time.Millisecond, d.Duration)

	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`"later"`)))

	out, err := Duration{2 * time.Second}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestConfig_AuthFlow(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	flow := cfg.AuthFlow()
	assert.Equal(t, auth.Config{
		ServerBaseURL: "https://auth.example.com",
		ClientID:      "local-dev-client",
		RedirectURI:   "http://localhost:8080/auth/callback",
		Scopes:        []string{"openid", "profile", "email"},
	}, flow)
	assert.NoError(t, flow.Validate())

	// The returned scopes do not alias the config.
	flow.Scopes[0] = "changed"
	assert.Equal(t, "openid", cfg.Auth.Scopes[0])
}
