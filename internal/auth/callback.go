package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"authflow-go/internal/metrics"
)

// Status is the state of one callback.
type Status int32

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusSucceeded:
		return "SUCCEEDED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// ErrCallbackAlreadyHandled is returned by Callback.Handle on every call after
// the first. Nothing observable happens on those calls.
var ErrCallbackAlreadyHandled = errors.New("callback already handled")

// Params are the redirect query parameters the authorization server sends.
type Params struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParamsFromQuery extracts Params from a redirect query string.
func ParamsFromQuery(q url.Values) Params {
	return Params{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// Result is the terminal outcome of a callback.
type Result struct {
	Status Status
	// Err is the failure reason when Status is StatusFailed.
	Err error
	// Profile is set when the token was confirmed usable end to end.
	Profile *Profile
	// ProfileErr is set when the login succeeded but the profile could not
	// be fetched. The token is kept.
	ProfileErr error
}

// Degraded reports a successful login whose profile is unavailable.
func (r Result) Degraded() bool {
	return r.Status == StatusSucceeded && r.ProfileErr != nil
}

// Reason is the user-visible failure message, empty unless failed.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// TokenSaver persists an issued access token.
type TokenSaver interface {
	Save(ctx context.Context, token string) error
}

// CallbackDeps are the collaborators of a CallbackHandler.
type CallbackDeps struct {
	Flows     FlowStore
	Exchanger Exchanger
	Tokens    TokenSaver
	Profiles  ProfileFetcher
	Logger    *slog.Logger
	// RetryDelay is the pause before retrying a canceled profile fetch.
	RetryDelay time.Duration
}

// CallbackHandler validates redirects and completes flow attempts.
type CallbackHandler struct {
	cfg        Config
	flows      FlowStore
	exchanger  Exchanger
	tokens     TokenSaver
	profiles   ProfileFetcher
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(cfg Config, deps CallbackDeps) *CallbackHandler {
	h := &CallbackHandler{
		cfg:        cfg,
		flows:      deps.Flows,
		exchanger:  deps.Exchanger,
		tokens:     deps.Tokens,
		profiles:   deps.Profiles,
		logger:     deps.Logger,
		retryDelay: deps.RetryDelay,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.retryDelay <= 0 {
		h.retryDelay = DefaultRetryDelay
	}
	return h
}

// NewCallback returns a fresh flow instance with its own one-shot latch.
func (h *CallbackHandler) NewCallback() *Callback {
	return &Callback{
		h:    h,
		done: make(chan struct{}),
	}
}

// Callback is one flow instance. Handle does its work at most once no matter
// how many times it is invoked.
type Callback struct {
	h       *CallbackHandler
	started atomic.Bool
	status  atomic.Int32
	done    chan struct{}
	result  Result // written once, before done is closed
}

// Handle processes the redirect. The first call runs the flow to a terminal
// state and returns its Result. Later calls return ErrCallbackAlreadyHandled
// immediately; use Wait to observe the outcome of the first.
func (c *Callback) Handle(ctx context.Context, p Params) (Result, error) {
	if !c.started.CompareAndSwap(false, true) {
		metrics.CallbacksDeduplicated.Inc()
		return Result{}, ErrCallbackAlreadyHandled
	}

	res := c.h.run(ctx, p)

	c.result = res
	c.status.Store(int32(res.Status))
	close(c.done)
	return res, nil
}

// Wait blocks until the callback reaches a terminal state or ctx is done.
func (c *Callback) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return Result{Status: StatusPending}, ctx.Err()
	}
}

// Status returns the current state.
func (c *Callback) Status() Status {
	return Status(c.status.Load())
}

// Started reports whether Handle has been entered.
func (c *Callback) Started() bool {
	return c.started.Load()
}

func (h *CallbackHandler) run(ctx context.Context, p Params) Result {
	// Per-flow cleanup must happen even if the caller has gone away.
	cleanupCtx := context.WithoutCancel(ctx)

	token, err := h.obtainToken(ctx, p)
	if err != nil {
		h.clearFlow(cleanupCtx)
		return h.fail(ctx, err)
	}

	// The attempt is consumed whatever happens next.
	h.clearFlow(cleanupCtx)

	if err := h.tokens.Save(cleanupCtx, token); err != nil {
		return h.fail(ctx, fmt.Errorf("failed to persist session token: %w", err))
	}

	if h.profiles == nil {
		metrics.CallbackOutcomes.WithLabelValues("succeeded", "").Inc()
		return Result{Status: StatusSucceeded}
	}

	profile, err := retryTransient(ctx, h.logger, "profile_fetch", h.retryDelay, func() (*Profile, error) {
		return h.profiles.FetchProfile(ctx, token)
	})
	if err != nil {
		metrics.CallbackOutcomes.WithLabelValues("degraded", KindOf(err).String()).Inc()
		h.logger.WarnContext(ctx, "logged in but profile unavailable", "error", err)
		return Result{Status: StatusSucceeded, ProfileErr: err}
	}

	metrics.CallbackOutcomes.WithLabelValues("succeeded", "").Inc()
	h.logger.InfoContext(ctx, "authorization flow completed", "subject", profile.ID)
	return Result{Status: StatusSucceeded, Profile: profile}
}

// obtainToken runs the validation steps and the code exchange, in order,
// stopping at the first failure.
func (h *CallbackHandler) obtainToken(ctx context.Context, p Params) (string, error) {
	if p.Error != "" {
		msg := p.ErrorDescription
		if msg == "" {
			msg = p.Error
		}
		return "", &Error{Kind: KindProvider, Message: msg}
	}

	if p.Code == "" {
		return "", protocolError(msgNoCode, nil)
	}

	attempt, err := h.flows.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoAttempt) {
		return "", fmt.Errorf("failed to read flow attempt: %w", err)
	}
	if attempt == nil || attempt.State == "" ||
		subtle.ConstantTimeCompare([]byte(attempt.State), []byte(p.State)) != 1 {
		return "", securityError(msgInvalidState)
	}
	if attempt.Verifier == "" {
		return "", securityError("missing code verifier")
	}

	token, err := h.exchanger.Exchange(ctx, h.cfg, p.Code, attempt.Verifier)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", protocolError(msgNoTokenResult, nil)
	}
	return token, nil
}

func (h *CallbackHandler) clearFlow(ctx context.Context) {
	if err := h.flows.Clear(ctx); err != nil {
		h.logger.ErrorContext(ctx, "failed to clear flow attempt", "error", err)
	}
}

func (h *CallbackHandler) fail(ctx context.Context, err error) Result {
	kind := KindOf(err)
	metrics.CallbackOutcomes.WithLabelValues("failed", kind.String()).Inc()
	h.logger.WarnContext(ctx, "authorization callback failed",
		"kind", kind.String(),
		"error", err)
	return Result{Status: StatusFailed, Err: err}
}
