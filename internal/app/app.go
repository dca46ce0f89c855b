package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"authflow-go/internal/auth"
	"authflow-go/internal/config"
	"authflow-go/internal/logging"
	"authflow-go/internal/metrics"
	"authflow-go/internal/session"
	"authflow-go/internal/storage"
)

const (
	shutdownTimeout = 5 * time.Second

	// redisKeyPrefix namespaces every key this application writes to Redis.
	redisKeyPrefix = "authflow"
)

// Application holds all the major components of the service.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Flows         auth.FlowStore
	Sessions      session.Store
	Authorizer    *auth.Authorizer
	Callbacks     *auth.CallbackHandler
	Profiles      auth.ProfileFetcher
	Router        chi.Router
	HTTPServer    *http.Server
	MetricsServer *http.Server

	flowConfig auth.Config
	closers    []io.Closer

	mu       sync.Mutex
	callback *auth.Callback

	loginOnce   sync.Once
	loginDone   chan struct{}
	loginResult auth.Result
}

type options struct {
	logger     *slog.Logger
	httpClient *http.Client
	sessions   session.Store
	flows      auth.FlowStore
}

// Option configures an Application.
type Option func(*options)

// WithLogger sets the logger instead of building one from the config.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the client used to reach the authorization server and API.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithSessionStore overrides the configured session store.
func WithSessionStore(s session.Store) Option {
	return func(o *options) { o.sessions = s }
}

// WithFlowStore overrides the configured flow store.
func WithFlowStore(s auth.FlowStore) Option {
	return func(o *options) { o.flows = s }
}

// New creates and initializes a new Application instance.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Application, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.RedirectPath() == "/" {
		return nil, config.ErrRootRedirectPath
	}
	if o.logger == nil {
		o.logger = logging.New(cfg.LogLevel, os.Stdout, logging.RequestID)
	}

	a := &Application{
		Config:     cfg,
		Logger:     o.logger,
		flowConfig: cfg.AuthFlow(),
		loginDone:  make(chan struct{}),
	}

	// Setup: per-flow store
	a.Flows = o.flows
	if a.Flows == nil {
		flows, closer, err := NewFlowStore(cfg)
		if err != nil {
			return nil, err
		}
		a.Flows = flows
		a.addCloser(closer)
	}

	// Setup: session store
	a.Sessions = o.sessions
	if a.Sessions == nil {
		sessions, closer, err := NewSessionStore(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Sessions = sessions
		a.addCloser(closer)
	}

	// Setup: flow components
	clientOpts := ClientOptions(cfg, logging.Component(a.Logger, "auth"))
	if o.httpClient != nil {
		clientOpts = append(clientOpts, auth.WithHTTPClient(o.httpClient))
	}
	a.Authorizer = auth.NewAuthorizer(a.Flows, logging.Component(a.Logger, "auth"))
	a.Profiles = auth.NewProfileClient(cfg.API.BaseURL, cfg.API.ProfilePath, clientOpts...)
	a.Callbacks = auth.NewCallbackHandler(a.flowConfig, auth.CallbackDeps{
		Flows:      a.Flows,
		Exchanger:  auth.NewTokenClient(clientOpts...),
		Tokens:     a.Sessions,
		Profiles:   a.Profiles,
		Logger:     logging.Component(a.Logger, "callback"),
		RetryDelay: cfg.Auth.RetryDelay.Duration,
	})

	// Setup: HTTP servers
	a.Router = a.routes()
	a.HTTPServer = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.HTTP.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		a.MetricsServer = &http.Server{
			Addr:              cfg.HTTP.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if session.IsAuthenticated(ctx, a.Sessions) {
		metrics.SessionsActive.Set(1)
	} else {
		metrics.SessionsActive.Set(0)
	}

	return a, nil
}

func (a *Application) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)
	r.Get("/login", a.handleLogin)
	r.Get(a.Config.RedirectPath(), a.handleAuthCallback)
	r.Post("/logout", a.handleLogout)
	r.Get("/session", a.handleSession)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/", a.handleHome)
	})

	return r
}

// ClientOptions returns the HTTP client options derived from cfg.
func ClientOptions(cfg *config.Config, logger *slog.Logger) []auth.ClientOption {
	return []auth.ClientOption{
		auth.WithLogger(logger),
		auth.WithTimeout(cfg.Auth.ExchangeTimeout.Duration),
		auth.WithRetryDelay(cfg.Auth.RetryDelay.Duration),
	}
}

// NewFlowStore builds the configured per-flow store. The returned closer,
// when non-nil, releases its connection.
func NewFlowStore(cfg *config.Config) (auth.FlowStore, io.Closer, error) {
	switch cfg.Flow.Store {
	case config.FlowStoreRedis:
		redisOpts, err := redis.ParseURL(cfg.Flow.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		client := redis.NewClient(redisOpts)
		return auth.NewRedisFlowStore(client, redisKeyPrefix, cfg.Session.Slot, cfg.Flow.TTL.Duration), client, nil
	default:
		return auth.NewMemoryFlowStore(cfg.Flow.TTL.Duration), nil, nil
	}
}

// NewSessionStore builds the configured session store. The returned closer,
// when non-nil, releases its database.
func NewSessionStore(ctx context.Context, cfg *config.Config) (session.Store, io.Closer, error) {
	switch cfg.Session.Store {
	case config.SessionStoreSQLite:
		db, err := storage.NewSQLiteStorage(ctx, cfg.Session.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session database: %w", err)
		}
		return session.NewDatabaseStore(db, cfg.Session.Slot), db, nil
	case config.SessionStoreKeyring:
		return session.NewKeyringStore(cfg.Session.KeyringService, cfg.Session.Slot), nil, nil
	default:
		return session.NewInMemoryStore(), nil, nil
	}
}

func (a *Application) addCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

// Run serves HTTP (and metrics, when configured) until ctx is done, then
// shuts the servers down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.HTTPServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.HTTPServer.Addr, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := a.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if a.MetricsServer != nil {
		g.Go(func() error {
			a.Logger.Info("starting metrics server", "addr", a.MetricsServer.Addr)
			if err := a.MetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *Application) shutdown() error {
	a.Logger.Info("stopping application services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the stores' connections.
func (a *Application) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// WaitForLogin blocks until the first callback since start reaches a
// terminal state and returns its result.
func (a *Application) WaitForLogin(ctx context.Context) (auth.Result, error) {
	select {
	case <-a.loginDone:
		return a.loginResult, nil
	case <-ctx.Done():
		return auth.Result{Status: auth.StatusPending}, ctx.Err()
	}
}

func (a *Application) reportLogin(res auth.Result) {
	a.loginOnce.Do(func() {
		a.loginResult = res
		close(a.loginDone)
	})
}

// startCallback replaces the current flow instance with a fresh one.
func (a *Application) startCallback() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = a.Callbacks.NewCallback()
}

// currentCallback returns the flow instance for the live attempt, creating
// one if the redirect arrives without a preceding /login in this process.
func (a *Application) currentCallback() *auth.Callback {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.callback == nil {
		a.callback = a.Callbacks.NewCallback()
	}
	return a.callback
}
