package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for the deployment engine. It satisfies
// the transport's and installer's observer interfaces so neither package
// imports the metrics registry. A disabled Metrics is a safe no-op.
type Metrics struct {
	config MetricsConfig

	// Remote command metrics
	commandsExecuted *prometheus.CounterVec
	commandDuration  prometheus.Histogram
	commandRetries   prometheus.Counter

	// Capability metrics
	capabilityResults  *prometheus.CounterVec
	capabilityDuration *prometheus.HistogramVec

	// Configurator metrics
	configuratorResults *prometheus.CounterVec

	// Deployment metrics
	deploymentsCompleted *prometheus.CounterVec
	deploymentDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		commandsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_executed_total",
				Help:      "Total number of remote commands executed",
			},
			[]string{"status"},
		),
		commandDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of remote command execution in seconds",
				Buckets:   buckets,
			},
		),
		commandRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_retries_total",
				Help:      "Total number of connection-level command retries",
			},
		),

		capabilityResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capability_results_total",
				Help:      "Total capability outcomes by capability and status",
			},
			[]string{"capability", "status"},
		),
		capabilityDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "capability_duration_seconds",
				Help:      "Duration of capability convergence in seconds",
				Buckets:   buckets,
			},
			[]string{"capability"},
		),

		configuratorResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "configurator_results_total",
				Help:      "Total configurator unit outcomes by unit and status",
			},
			[]string{"unit", "status"},
		),

		deploymentsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_completed_total",
				Help:      "Total number of deployment runs completed",
			},
			[]string{"status"},
		),
		deploymentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deployment_duration_seconds",
				Help:      "Duration of deployment runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.commandsExecuted,
		m.commandDuration,
		m.commandRetries,
		m.capabilityResults,
		m.capabilityDuration,
		m.configuratorResults,
		m.deploymentsCompleted,
		m.deploymentDuration,
	)

	return m, nil
}

// ObserveCommand records one remote command outcome. Implements the
// transport's CommandObserver interface.
func (m *Metrics) ObserveCommand(success bool, duration time.Duration, retries int) {
	if m.commandsExecuted == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	m.commandsExecuted.WithLabelValues(status).Inc()
	m.commandDuration.Observe(duration.Seconds())
	if retries > 0 {
		m.commandRetries.Add(float64(retries))
	}
}

// ObserveInstall records one capability outcome. Implements the installer's
// InstallObserver interface.
func (m *Metrics) ObserveInstall(capability string, status string, duration time.Duration) {
	if m.capabilityResults == nil {
		return
	}
	m.capabilityResults.WithLabelValues(capability, status).Inc()
	m.capabilityDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordConfigurator records one configurator unit outcome.
func (m *Metrics) RecordConfigurator(unit string, success bool) {
	if m.configuratorResults == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	m.configuratorResults.WithLabelValues(unit, status).Inc()
}

// RecordDeployment records a completed deployment run.
func (m *Metrics) RecordDeployment(status string, duration time.Duration) {
	if m.deploymentsCompleted == nil {
		return
	}
	m.deploymentsCompleted.WithLabelValues(status).Inc()
	m.deploymentDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	return nil
}
