package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FlowsStarted is a counter for authorization requests built.
	FlowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authflow_flows_started_total",
			Help: "The total number of authorization flow attempts started.",
		},
	)

	// CallbackOutcomes is a counter for terminal callback transitions.
	CallbackOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_callback_outcomes_total",
			Help: "The total number of callbacks by outcome and error kind.",
		},
		[]string{"outcome", "kind"},
	)

	// CallbacksDeduplicated counts callback invocations absorbed by the latch.
	CallbacksDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authflow_callbacks_deduplicated_total",
			Help: "The total number of repeated callback invocations ignored.",
		},
	)

	// TokenExchanges is a counter for token endpoint calls by result.
	TokenExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_token_exchanges_total",
			Help: "The total number of authorization code exchanges by result.",
		},
		[]string{"result"},
	)

	// Retries is a counter for transient-failure retries.
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authflow_retries_total",
			Help: "The total number of retries after a transient failure.",
		},
		[]string{"operation"},
	)

	// TokenExchangeDuration is a histogram of the time spent exchanging a code,
	// retries included.
	TokenExchangeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "authflow_token_exchange_duration_seconds",
			Help:    "A histogram of the authorization code exchange duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	// SessionsActive is 1 while a session token is stored.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authflow_session_active",
			Help: "Whether a session token is currently stored.",
		},
	)
)
