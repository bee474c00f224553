package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Replicated Store metrics
	RSEntitiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "formation_rs_entities_total",
			Help: "Total number of live (non-tombstoned) registers by entity kind",
		},
		[]string{"kind"},
	)

	RSApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formation_rs_apply_duration_seconds",
			Help:    "Time taken to apply a local write to the Replicated Store",
			Buckets: prometheus.DefBuckets,
		},
	)

	RSMergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formation_rs_merge_duration_seconds",
			Help:    "Time taken to merge a remote delta into the Replicated Store",
			Buckets: prometheus.DefBuckets,
		},
	)

	RSEquivocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formation_rs_equivocations_total",
			Help: "Total number of quarantined equivocating deltas by entity kind",
		},
		[]string{"kind"},
	)

	RSTombstonesGCedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formation_rs_tombstones_gced_total",
			Help: "Total number of tombstones garbage collected",
		},
	)

	// Operation Log metrics
	OLAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formation_oplog_appends_total",
			Help: "Total number of frames appended by topic",
		},
		[]string{"topic"},
	)

	OLBacklogSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "formation_oplog_backlog_size",
			Help: "Number of frames queued for fan-out to a subscriber",
		},
		[]string{"topic", "peer"},
	)

	OLFanoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formation_oplog_fanout_duration_seconds",
			Help:    "Time taken to fan a frame out to a subscriber",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	OLCircuitBreakerOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formation_oplog_circuit_breaker_open_total",
			Help: "Total number of times a peer's circuit breaker tripped open",
		},
		[]string{"peer"},
	)

	OLBackpressureRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formation_oplog_backpressure_rejections_total",
			Help: "Total number of writes rejected because a topic's ring was full",
		},
		[]string{"topic"},
	)

	OLBootstrapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formation_oplog_bootstrap_duration_seconds",
			Help:    "Time taken for a node to complete snapshot-then-catch-up bootstrap",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Geo Resolver metrics
	GRQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formation_georesolver_queries_total",
			Help: "Total number of DNS queries answered by record type",
		},
		[]string{"qtype"},
	)

	GRQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formation_georesolver_query_duration_seconds",
			Help:    "Time taken to answer a DNS query, including ranking",
			Buckets: prometheus.DefBuckets,
		},
	)

	GRHealthTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formation_georesolver_health_transitions_total",
			Help: "Total number of DNS target health state transitions",
		},
		[]string{"from", "to"},
	)

	GRLastKnownGoodHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formation_georesolver_last_known_good_hits_total",
			Help: "Total number of queries answered from the last-known-good cache because all targets were unhealthy",
		},
	)

	// HTTP ingress metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formation_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formation_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formation_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formation_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	ReconciliationRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formation_reconciliation_repairs_total",
			Help: "Total number of corrective writes emitted by the reconciler by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		RSEntitiesTotal,
		RSApplyDuration,
		RSMergeDuration,
		RSEquivocationsTotal,
		RSTombstonesGCedTotal,
		OLAppendsTotal,
		OLBacklogSize,
		OLFanoutDuration,
		OLCircuitBreakerOpenTotal,
		OLBackpressureRejectionsTotal,
		OLBootstrapDuration,
		GRQueriesTotal,
		GRQueryDuration,
		GRHealthTransitionsTotal,
		GRLastKnownGoodHitsTotal,
		APIRequestsTotal,
		APIRequestDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		ReconciliationRepairsTotal,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
