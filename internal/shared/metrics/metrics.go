package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "insight"

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	runsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capability_runs_total",
		Help:      "Capability runs by capability and outcome.",
	}, []string{"capability", "outcome"})

	runDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "capability_run_duration_ms",
		Help:      "Capability run duration in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"capability"})

	findingsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_findings_total",
		Help:      "Risk findings raised by code and severity.",
	}, []string{"code", "severity"})

	bootstrapsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bootstraps_total",
		Help:      "Dataset uploads by outcome.",
	}, []string{"outcome"})

	bootstrapRows = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "bootstrap_rows",
		Help:      "Rows per uploaded dataset.",
		Buckets:   prometheus.ExponentialBuckets(10, 10, 6),
	})

	activeSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Live analysis sessions.",
	})

	evictionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_evictions_total",
		Help:      "Session evictions by reason.",
	}, []string{"reason"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IncRun counts a finished capability run.
func IncRun(capability, outcome string) {
	runsTotal.WithLabelValues(capability, outcome).Inc()
}

// ObserveRunDurationMs records a run duration in milliseconds.
func ObserveRunDurationMs(capability string, value float64) {
	if value < 0 {
		value = 0
	}
	runDuration.WithLabelValues(capability).Observe(value)
}

// IncFinding counts a risk finding.
func IncFinding(code, severity string) {
	findingsTotal.WithLabelValues(code, severity).Inc()
}

// IncBootstrap counts an upload attempt.
func IncBootstrap(outcome string) {
	bootstrapsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBootstrapRows records the size of an accepted dataset.
func ObserveBootstrapRows(rows int) {
	bootstrapRows.Observe(float64(rows))
}

// SetActiveSessions publishes the current session count.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// IncEviction counts a session leaving the store.
func IncEviction(reason string) {
	evictionsTotal.WithLabelValues(reason).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
