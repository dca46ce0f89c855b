package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"authflow-go/internal/auth"
	"authflow-go/internal/config"
)

// fakeAuthServer stands in for the authorization server and resource API.
type fakeAuthServer struct {
	*httptest.Server
	token        string
	tokenCalls   atomic.Int32
	lastVerifier atomic.Value
	challenge    atomic.Value

	// Non-zero statuses make the endpoints fail.
	tokenStatus   atomic.Int32
	profileStatus atomic.Int32

	// tokenGate holds the token endpoint until the stored channel is closed.
	tokenGate atomic.Value
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()
	f := &fakeAuthServer{token: jwtShaped(`{"sub":"u-1","email":"ada@example.com","name":"Ada","scope":"openid profile"}`)}

	mux := http.NewServeMux()
	// The authorize endpoint approves immediately.
	mux.HandleFunc(auth.AuthorizePath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("code_challenge_method") != auth.ChallengeMethod || q.Get("response_type") != "code" {
			http.Error(w, "bad authorization request", http.StatusBadRequest)
			return
		}
		f.challenge.Store(q.Get("code_challenge"))

		back, err := url.Parse(q.Get("redirect_uri"))
		if err != nil {
			http.Error(w, "bad redirect_uri", http.StatusBadRequest)
			return
		}
		back.RawQuery = url.Values{"code": {"granted-code"}, "state": {q.Get("state")}}.Encode()
		http.Redirect(w, r, back.String(), http.StatusFound)
	})
	mux.HandleFunc(auth.TokenPath, func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if gate, _ := f.tokenGate.Load().(chan struct{}); gate != nil {
			<-gate
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.lastVerifier.Store(req["code_verifier"])

		// Enforce PKCE once a challenge has been seen.
		if challenge, _ := f.challenge.Load().(string); challenge != "" && !auth.VerifyChallenge(challenge, req["code_verifier"]) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "PKCE verification failed"})
			return
		}

		if status := int(f.tokenStatus.Load()); status != 0 {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant", "error_description": "authorization code expired"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": f.token, "token_type": "Bearer"})
	})
	mux.HandleFunc(auth.DefaultProfilePath, func(w http.ResponseWriter, r *http.Request) {
		if status := int(f.profileStatus.Load()); status != 0 {
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": http.StatusText(status)})
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(auth.Profile{ID: "u-1", Email: "ada@example.com", Name: "Ada"})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func jwtShaped(payload string) string {
	return "eyJhbGciOiJSUzI1NiJ9." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".c2ln"
}

func testConfig(serverURL string) *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			ServerBaseURL:   serverURL,
			ClientID:        "test-client",
			RedirectURI:     "http://127.0.0.1:8080/auth/callback",
			Scopes:          []string{"openid", "profile"},
			ExchangeTimeout: config.Duration{Duration: 2 * time.Second},
			RetryDelay:      config.Duration{Duration: time.Millisecond},
		},
		API: config.APIConfig{
			BaseURL:     serverURL,
			ProfilePath: auth.DefaultProfilePath,
		},
		HTTP: config.HTTPConfig{Addr: "127.0.0.1:0"},
		Flow: config.FlowConfig{
			Store: config.FlowStoreMemory,
			TTL:   config.Duration{Duration: time.Minute},
		},
		Session: config.SessionConfig{
			Store: config.SessionStoreMemory,
			Slot:  "default",
		},
		LogLevel: "error",
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *Application {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	a, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// do serves one request through the application's router.
func do(a *Application, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

// login drives /login and returns the state the authorization server received.
func login(t *testing.T, a *Application) string {
	t.Helper()
	rr := do(a, http.MethodGet, "/login")
	require.Equal(t, http.StatusSeeOther, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(loc.Path, auth.AuthorizePath))
	return loc.Query().Get("state")
}

func callbackURL(values url.Values) string {
	return "/auth/callback?" + values.Encode()
}
