// Package metrics exposes the control plane's Prometheus series.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "controlplane_nodes_total",
			Help: "Total number of nodes by status",
		},
		[]string{"status"},
	)

	MatchesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "controlplane_matches_total",
			Help: "Total number of matches by status",
		},
		[]string{"status"},
	)

	ModulesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_modules_total",
			Help: "Total number of distinct (name, version) modules stored",
		},
	)

	ClusterSaturation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_cluster_saturation",
			Help: "Current cluster saturation in [0,1] as observed by the scheduler",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_http_requests_total",
			Help: "Total number of admin HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SchedulingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "controlplane_scheduling_duration_seconds",
			Help:    "Time taken to select a node for a match",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulingFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_scheduling_failures_total",
			Help: "Total number of scheduling failures by reason",
		},
		[]string{"reason"},
	)

	MatchesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_matches_created_total",
			Help: "Total number of matches successfully moved to RUNNING",
		},
	)

	MatchesErroredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_matches_errored_total",
			Help: "Total number of matches that transitioned to ERROR",
		},
	)

	OrphanSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_orphan_swept_total",
			Help: "Total number of matches swept to ERROR after their owning node was removed",
		},
	)

	ModuleDistributionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_module_distribution_failures_total",
			Help: "Total number of failed module pushes by node",
		},
		[]string{"node_id"},
	)

	AuthBrokerFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_auth_broker_failures_total",
			Help: "Total number of failed match-token acquisitions",
		},
	)

	AutoscalerRecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_autoscaler_recommendations_total",
			Help: "Total number of autoscaler recommendations by action",
		},
		[]string{"action"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_store_operation_duration_seconds",
			Help:    "Shared state store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	NodesGraceSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_nodes_grace_swept_total",
			Help: "Total number of nodes removed by the grace-period sweeper after prolonged heartbeat absence",
		},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		MatchesTotal,
		ModulesTotal,
		ClusterSaturation,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SchedulingDuration,
		SchedulingFailuresTotal,
		MatchesCreatedTotal,
		MatchesErroredTotal,
		OrphanSweptTotal,
		ModuleDistributionFailuresTotal,
		AuthBrokerFailuresTotal,
		AutoscalerRecommendationsTotal,
		StoreOperationDuration,
		NodesGraceSweptTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
