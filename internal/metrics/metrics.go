package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arqbot",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arqbot",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arqbot",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Upstream fetch metrics ─────────────────────────────────────────────

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arqbot",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total number of upstream fetches per source.",
	}, []string{"source", "status"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arqbot",
		Subsystem: "upstream",
		Name:      "duration_seconds",
		Help:      "Duration of upstream fetches per source in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	AggregateFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arqbot",
		Subsystem: "upstream",
		Name:      "aggregate_failures_total",
		Help:      "Total aggregation runs that failed, per operation.",
	}, []string{"op"})
)

// ── Bot metrics ────────────────────────────────────────────────────────

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arqbot",
		Subsystem: "bot",
		Name:      "commands_total",
		Help:      "Total commands handled per platform.",
	}, []string{"platform", "command"})

	RepliesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arqbot",
		Subsystem: "bot",
		Name:      "replies_failed_total",
		Help:      "Total replies that could not be delivered.",
	}, []string{"platform"})

	BotUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "arqbot",
		Subsystem: "bot",
		Name:      "up",
		Help:      "Whether the platform bot loop is running (1) or not (0).",
	}, []string{"platform"})
)
