package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"

	"authflow-go/internal/metrics"
)

const (
	// DefaultHTTPTimeout bounds a single request to the authorization server
	// or API. Generous enough for a cold-starting server.
	DefaultHTTPTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Exchanger trades an authorization code for an access token.
type Exchanger interface {
	Exchange(ctx context.Context, cfg Config, code, verifier string) (string, error)
}

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	retryDelay time.Duration
}

// ClientOption configures TokenClient and ProfileClient.
type ClientOption func(*clientOptions)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithRetryDelay sets the pause before retrying a transient failure.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.retryDelay = d
	}
}

func newClientOptions(opts []ClientOption) *clientOptions {
	o := &clientOptions{
		logger:     slog.Default(),
		timeout:    DefaultHTTPTimeout,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		// cookiejar.New only fails on invalid options.
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		o.httpClient = &http.Client{Jar: jar}
	}
	return o
}

// TokenClient talks to the authorization server's token endpoint.
type TokenClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	retryDelay time.Duration
}

// NewTokenClient creates a TokenClient.
func NewTokenClient(opts ...ClientOption) *TokenClient {
	o := newClientOptions(opts)
	return &TokenClient{
		httpClient: o.httpClient,
		logger:     o.logger,
		timeout:    o.timeout,
		retryDelay: o.retryDelay,
	}
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
	ClientID     string `json:"client_id"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// Exchange posts the authorization code and PKCE verifier to the token
// endpoint and returns the access token. A canceled or timed-out request is
// retried once after the configured delay; any other failure is returned
// immediately. The token is not persisted.
func (c *TokenClient) Exchange(ctx context.Context, cfg Config, code, verifier string) (string, error) {
	body, err := json.Marshal(tokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  cfg.RedirectURI,
		CodeVerifier: verifier,
		ClientID:     cfg.ClientID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	start := time.Now()
	token, err := retryTransient(ctx, c.logger, "token_exchange", c.retryDelay, func() (string, error) {
		return c.doExchange(ctx, cfg.Endpoint(TokenPath), body)
	})
	metrics.TokenExchangeDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TokenExchanges.WithLabelValues(KindOf(err).String()).Inc()
		return "", err
	}
	metrics.TokenExchanges.WithLabelValues("success").Inc()
	return token, nil
}

func (c *TokenClient) doExchange(ctx context.Context, endpoint string, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.DebugContext(ctx, "token request rejected", "status", resp.StatusCode)
		return "", providerError(providerMessage(resp, respBody, "token request"), resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", protocolError("malformed token response", err)
	}
	if tr.AccessToken == "" {
		return "", protocolError(msgNoAccessToken, nil)
	}

	return tr.AccessToken, nil
}

// providerMessage picks error_description, error or message from a JSON
// error body, in that order, falling back to the status line.
func providerMessage(resp *http.Response, body []byte, request string) string {
	var payload struct {
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.ErrorDescription != "":
			return payload.ErrorDescription
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
	}
	return fmt.Sprintf("%s failed: %s", request, resp.Status)
}
