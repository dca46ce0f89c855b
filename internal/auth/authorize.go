package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"authflow-go/internal/metrics"
)

// Authorization server paths, relative to Config.ServerBaseURL.
const (
	AuthorizePath = "/api/oauth/authorize"
	TokenPath     = "/api/oauth/token"
)

// DefaultScopes are requested when the host configures none.
var DefaultScopes = []string{"openid", "profile", "email"}

// Config is the public-client registration used for every flow attempt.
type Config struct {
	ServerBaseURL string   `json:"authServerBaseURL" validate:"required"`
	ClientID      string   `json:"clientId" validate:"required"`
	RedirectURI   string   `json:"redirectURI" validate:"required"`
	Scopes        []string `json:"scopes" validate:"min=1,dive,required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate fails with a KindConfiguration *Error naming the first missing field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		// dive errors are reported as "scopes[1]"; name the field itself.
		field := fieldErrs[0].Field()
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		return configError(field)
	}
	return &Error{Kind: KindConfiguration, Message: "invalid configuration", Err: err}
}

// Endpoint joins the server base URL and path, dropping a trailing slash
// from the base.
func (c Config) Endpoint(path string) string {
	return strings.TrimSuffix(c.ServerBaseURL, "/") + path
}

func (c Config) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURI,
		Scopes:      c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.Endpoint(AuthorizePath),
			TokenURL: c.Endpoint(TokenPath),
		},
	}
}

// Authorizer starts flow attempts.
type Authorizer struct {
	store  FlowStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthorizer creates an Authorizer that persists attempts to store.
func NewAuthorizer(store FlowStore, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// BeginFlow generates a PKCE pair and a state token, persists them as the
// live attempt (replacing any unfinished one) and returns the URL the browser
// must be sent to. It performs no network I/O.
func (a *Authorizer) BeginFlow(ctx context.Context, cfg Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	pkce := NewPKCEPair()
	attempt := &Attempt{
		ID:        uuid.NewString(),
		Verifier:  pkce.Verifier,
		State:     NewState(),
		StartedAt: a.now(),
	}

	if err := a.store.Save(ctx, attempt); err != nil {
		return "", fmt.Errorf("failed to store flow attempt: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethod),
	}
	authURL := cfg.oauth2Config().AuthCodeURL(attempt.State, opts...)

	metrics.FlowsStarted.Inc()
	a.logger.InfoContext(ctx, "authorization flow started",
		"attempt_id", attempt.ID,
		"client_id", cfg.ClientID)

	return authURL, nil
}
