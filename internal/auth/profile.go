package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultProfilePath is the API path that returns the authenticated user.
const DefaultProfilePath = "/api/users/me"

// Profile is the authenticated user as reported by the API backend.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ProfileFetcher loads the profile of the user owning token.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (*Profile, error)
}

// ProfileClient fetches the user profile from the resource API.
type ProfileClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
}

// NewProfileClient creates a ProfileClient for {apiBaseURL}{path}.
// An empty path selects DefaultProfilePath.
func NewProfileClient(apiBaseURL, path string, opts ...ClientOption) *ProfileClient {
	o := newClientOptions(opts)
	if path == "" {
		path = DefaultProfilePath
	}
	return &ProfileClient{
		url:        strings.TrimSuffix(apiBaseURL, "/") + path,
		httpClient: o.httpClient,
		logger:     o.logger,
		timeout:    o.timeout,
	}
}

// FetchProfile performs a single GET with the bearer token attached.
// Retrying is left to the caller.
func (c *ProfileClient) FetchProfile(ctx context.Context, token string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.bearerClient(token).Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.DebugContext(ctx, "profile request rejected", "status", resp.StatusCode)
		return nil, providerError(providerMessage(resp, body, "profile request"), resp.StatusCode)
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, protocolError("malformed profile response", err)
	}
	return &profile, nil
}

// bearerClient wraps the configured client so every request carries token.
func (c *ProfileClient) bearerClient(token string) *http.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		},
		Jar:     c.httpClient.Jar,
		Timeout: c.httpClient.Timeout,
	}
}
