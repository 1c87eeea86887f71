package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for pacrec reconciliation runs.
type Metrics struct {
	config MetricsConfig

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When disabled, all record methods
// are no-ops.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "runs_total",
				Help:      "Total number of reconciliation runs by final status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of reconciliation runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "actions_total",
				Help:      "Total number of executed backend actions",
			},
			[]string{"backend", "operation", "changed"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of backend invocations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "errors_total",
				Help:      "Total number of reconciliation errors by code",
			},
			[]string{"code"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.runsTotal, m.runDuration, m.actionsTotal, m.actionDuration, m.errorsTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// ObserveRun records one completed reconciliation run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveAction records one executed backend action.
func (m *Metrics) ObserveAction(backend, operation string, changed bool, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.actionsTotal.WithLabelValues(backend, operation, fmt.Sprint(changed)).Inc()
	m.actionDuration.WithLabelValues(backend, operation).Observe(d.Seconds())
}

// CountError records one classified error.
func (m *Metrics) CountError(code string) {
	if m.registry == nil {
		return
	}
	m.errorsTotal.WithLabelValues(code).Inc()
}

// Handler returns the HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on the configured listen address, blocking until
// the listener fails. Intended to run in a goroutine for long runs.
func (m *Metrics) Serve() error {
	if m.registry == nil || m.config.ListenAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(m.config.ListenAddr, mux)
}
