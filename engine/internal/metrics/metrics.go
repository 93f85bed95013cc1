package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetstats/fleetstats/engine/internal/statcache"
)

// Degradation labels for the diagnostics counter.
const (
	KindMissingHistory          = "missing_history"
	KindInsufficientSamples     = "insufficient_samples"
	KindInvalidSample           = "invalid_sample"
	KindInconsistency           = "mathematical_inconsistency"
	KindInsufficientNetwork     = "insufficient_network"
	KindNetworkTotalUnavailable = "network_total_unavailable"
	KindExcluded                = "excluded_below_threshold"
	KindDuplicateNode           = "duplicate_node"
)

// Metrics holds every collector the engine records into.
type Metrics struct {
	reg *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	lastRun      prometheus.Gauge
	nodes        prometheus.Gauge
	degradations *prometheus.CounterVec
	sinkFailures *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a Metrics with a private registry that also carries the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetstats_runs_total",
			Help: "Total compute runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetstats_run_duration_seconds",
			Help:    "Histogram of compute run durations, load to publish.",
			Buckets: prometheus.DefBuckets,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetstats_last_run_timestamp_seconds",
			Help: "Unix time of the last published run.",
		}),
		nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetstats_nodes",
			Help: "Nodes in the last published run.",
		}),
		degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetstats_degradations_total",
			Help: "Non-fatal degradations observed across runs, by kind.",
		}, []string{"kind"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetstats_sink_failures_total",
			Help: "Failed snapshot deliveries by sink.",
		}, []string{"sink"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetstats_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fleetstats_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs,
		m.runDuration,
		m.lastRun,
		m.nodes,
		m.degradations,
		m.sinkFailures,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RunFailed records a run that failed before publishing.
func (m *Metrics) RunFailed(d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues("error").Inc()
	m.runDuration.Observe(d.Seconds())
}

// RunPublished records a published run and adds its diagnostics to the
// degradation counters.
func (m *Metrics) RunPublished(snap *statcache.Snapshot, d time.Duration, duplicates int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.runDuration.Observe(d.Seconds())
	m.lastRun.Set(float64(snap.ComputedAt().Unix()))

	diag := snap.Diagnostics()
	m.nodes.Set(float64(diag.Nodes))
	for kind, n := range map[string]int{
		KindMissingHistory:          diag.MissingHistory,
		KindInsufficientSamples:     diag.InsufficientSamples,
		KindInvalidSample:           diag.InvalidSamples,
		KindInconsistency:           diag.Inconsistencies,
		KindInsufficientNetwork:     diag.InsufficientNetwork,
		KindNetworkTotalUnavailable: diag.NetworkTotalUnavailable,
		KindExcluded:                diag.ExcludedBelowThreshold,
		KindDuplicateNode:           duplicates,
	} {
		m.degradations.WithLabelValues(kind).Add(float64(n))
	}
}

// SinkFailed records a failed delivery to the named sink.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler instruments next under the given route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
