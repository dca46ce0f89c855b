package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) Config {
	return Config{
		ServerBaseURL: baseURL,
		ClientID:      "test-client",
		RedirectURI:   "http://localhost:8080/auth/callback",
		Scopes:        []string{"openid", "profile"},
	}
}

// mockExchanger returns a fixed result and counts calls.
type mockExchanger struct {
	token string
	err   error
	calls atomic.Int32

	mu       sync.Mutex
	code     string
	verifier string
	// release, when set, blocks Exchange until closed.
	release chan struct{}
}

func (m *mockExchanger) Exchange(ctx context.Context, _ Config, code, verifier string) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.code, m.verifier = code, verifier
	m.mu.Unlock()
	if m.release != nil {
		<-m.release
	}
	return m.token, m.err
}

// mockTokens records saved tokens.
type mockTokens struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (m *mockTokens) Save(_ context.Context, token string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, token)
	return nil
}

func (m *mockTokens) Saved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saved...)
}

// mockProfiles returns results in order, repeating the last one.
type mockProfiles struct {
	results []profileResult
	calls   atomic.Int32
}

type profileResult struct {
	profile *Profile
	err     error
}

func (m *mockProfiles) FetchProfile(_ context.Context, _ string) (*Profile, error) {
	n := int(m.calls.Add(1)) - 1
	if n >= len(m.results) {
		n = len(m.results) - 1
	}
	r := m.results[n]
	return r.profile, r.err
}

// failingFlowStore fails every operation.
type failingFlowStore struct{ err error }

func (f failingFlowStore) Save(context.Context, *Attempt) error   { return f.err }
func (f failingFlowStore) Load(context.Context) (*Attempt, error) { return nil, f.err }
func (f failingFlowStore) Clear(context.Context) error            { return f.err }

var errBoom = errors.New("boom")

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// failFirst fails the first n requests with err, then delegates to base.
func failFirst(n int32, err error, base http.RoundTripper) (http.RoundTripper, *atomic.Int32) {
	var calls atomic.Int32
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) <= n {
			return nil, err
		}
		return base.RoundTrip(r)
	}), &calls
}
