package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sechat_messages_submitted_total",
			Help: "Message submissions by outcome",
		},
		[]string{"outcome"}, // "created", "replayed", "rejected", "error"
	)

	SystemMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sechat_system_messages_total",
			Help: "Total system messages posted",
		},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sechat_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	Joins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sechat_joins_total",
			Help: "Participant joins",
		},
		[]string{"kind"}, // "new" or "reentry"
	)

	// Fan-out metrics
	FanoutDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sechat_fanout_delivered_total",
			Help: "Realtime events delivered to subscribers",
		},
	)

	FanoutDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sechat_fanout_dropped_total",
			Help: "Realtime events dropped because a subscriber buffer was full",
		},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sechat_realtime_subscribers",
			Help: "Live realtime subscriptions",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sechat_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sechat_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sechat_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sechat_postgres_latency_seconds",
			Help:    "PostgreSQL query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
