package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a flow failure.
type Kind int

const (
	// KindConfiguration is a missing or invalid client configuration value.
	// It is reported before any network call is made.
	KindConfiguration Kind = iota + 1
	// KindSecurity is a CSRF state mismatch. Never retried.
	KindSecurity
	// KindProtocol is a malformed or incomplete response or redirect.
	KindProtocol
	// KindTransient is a canceled or timed-out request. Retried exactly once.
	KindTransient
	// KindProvider is an explicit error from the authorization server or API.
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindSecurity:
		return "security"
	case KindProtocol:
		return "protocol"
	case KindTransient:
		return "transient"
	case KindProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// User-visible failure messages.
const (
	msgInvalidState   = "invalid state parameter"
	msgNoCode         = "no authorization code received"
	msgNoAccessToken  = "no access token received"
	msgNoTokenResult  = "failed to obtain access token"
	msgUnreachable    = "authorization server unreachable"
	msgRequestAborted = "request canceled"
	msgRequestTimeout = "request timed out"
)

// Error is the uniform failure type of the authorization flow.
// Error() returns only the user-visible message; the underlying cause is
// available through errors.Unwrap.
type Error struct {
	Kind    Kind
	Field   string // configuration field, KindConfiguration only
	Message string
	Status  int // HTTP status, when the failure came from a response
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsTransient reports whether err is worth a single retry.
func IsTransient(err error) bool {
	return IsKind(err, KindTransient)
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func configError(field string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Field:   field,
		Message: fmt.Sprintf("missing configuration value: %s", field),
	}
}

func securityError(msg string) *Error {
	return &Error{Kind: KindSecurity, Message: msg}
}

func protocolError(msg string, err error) *Error {
	return &Error{Kind: KindProtocol, Message: msg, Err: err}
}

func providerError(msg string, status int) *Error {
	return &Error{Kind: KindProvider, Message: msg, Status: status}
}

// classifyTransport maps an http.Client.Do failure onto the taxonomy.
// Cancellation and timeouts are transient; anything else means the server
// could not be reached and is reported without retry.
func classifyTransport(err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindTransient, Message: msgRequestAborted, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTransient, Message: msgRequestTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTransient, Message: msgRequestTimeout, Err: err}
	}

	return &Error{Kind: KindProvider, Message: msgUnreachable, Err: err}
}
