// Package metrics exposes Prometheus instrumentation for the drops engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropforge/twitch-drops-go/internal/model"
)

// Metrics holds all Prometheus collectors for the engine, registered on
// a dedicated registry so tests never collide on the global one.
type Metrics struct {
	// DropsClaimed counts successfully claimed drop rewards.
	DropsClaimed prometheus.Counter
	// ClaimFailures counts failed claim attempts.
	ClaimFailures prometheus.Counter
	// Heartbeats counts acknowledged watch heartbeats.
	Heartbeats prometheus.Counter
	// PollCycles counts completed campaign poll cycles.
	PollCycles prometheus.Counter
	// PollErrors counts poll cycles that ended in an error.
	PollErrors prometheus.Counter
	// TokenRefreshes counts OAuth token refreshes.
	TokenRefreshes prometheus.Counter
	// ActiveCampaigns tracks the number of campaigns being mined.
	ActiveCampaigns prometheus.Gauge
	// ActiveWatchSessions tracks the number of live watch sessions.
	ActiveWatchSessions prometheus.Gauge
	// MinerState tracks the orchestrator state as an ordinal.
	MinerState prometheus.Gauge
	// GQLRequestDuration tracks GQL request latency by operation.
	GQLRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all engine metrics under the given
// namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		DropsClaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drops_claimed_total",
				Help:      "Total number of drop rewards claimed",
			},
		),
		ClaimFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claim_failures_total",
				Help:      "Total number of failed drop claim attempts",
			},
		),
		Heartbeats: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "heartbeats_total",
				Help:      "Total number of acknowledged watch heartbeats",
			},
		),
		PollCycles: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_cycles_total",
				Help:      "Total number of completed poll cycles",
			},
		),
		PollErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_errors_total",
				Help:      "Total number of poll cycles that failed",
			},
		),
		TokenRefreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of OAuth token refreshes",
			},
		),
		ActiveCampaigns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_campaigns",
				Help:      "Number of campaigns currently being mined",
			},
		),
		ActiveWatchSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_watch_sessions",
				Help:      "Number of live watch sessions",
			},
		),
		MinerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "miner_state",
				Help:      "Orchestrator state (0=idle 1=initializing 2=running 3=paused 4=stopped 5=error)",
			},
		),
		GQLRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gql_request_duration_seconds",
				Help:      "GQL request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.DropsClaimed,
		m.ClaimFailures,
		m.Heartbeats,
		m.PollCycles,
		m.PollErrors,
		m.TokenRefreshes,
		m.ActiveCampaigns,
		m.ActiveWatchSessions,
		m.MinerState,
		m.GQLRequestDuration,
	)

	return m
}

// Handler returns a Prometheus scrape handler for these metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveGQLRequest records the latency of a GQL operation.
func (m *Metrics) ObserveGQLRequest(operation string, seconds float64) {
	m.GQLRequestDuration.WithLabelValues(operation).Observe(seconds)
}

// SetMinerState records the orchestrator state as an ordinal gauge.
func (m *Metrics) SetMinerState(state model.State) {
	m.MinerState.Set(stateValue(state))
}

func stateValue(state model.State) float64 {
	switch state {
	case model.StateIdle:
		return 0
	case model.StateInitializing:
		return 1
	case model.StateRunning:
		return 2
	case model.StatePaused:
		return 3
	case model.StateStopped:
		return 4
	case model.StateError:
		return 5
	default:
		return -1
	}
}
