package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Message log metrics
	MessagesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_accepted_total",
			Help: "Messages durably committed with a fresh id",
		},
	)

	DuplicateSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_duplicate_submissions_total",
			Help: "Submissions collapsed onto an existing client offset",
		},
	)

	AppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_append_failures_total",
			Help: "Append calls that failed without committing a row",
		},
	)

	AppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_append_duration_seconds",
			Help:    "Message log append latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// Broadcast metrics
	BroadcastsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcasts_published_total",
			Help: "Accepted messages published to the fanout channel",
		},
	)

	BroadcastFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_failures_total",
			Help: "Publish attempts that failed (broadcast possibly lost)",
		},
	)

	BroadcastsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcasts_delivered_total",
			Help: "Messages handed to a live session's delivery queue",
		},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcasts_dropped_total",
			Help: "Deliveries dropped because a session queue was full",
		},
	)

	// Recovery metrics
	Recoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_recoveries_total",
			Help: "Reconnection recoveries by path",
		},
		[]string{"path"}, // "fast" or "slow"
	)

	RecoveryReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_recovery_messages_replayed_total",
			Help: "Messages replayed to reconnecting sessions",
		},
	)

	RecoveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_recovery_failures_total",
			Help: "Slow-path scans that stopped mid-stream",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rate_limit_hits_total",
			Help: "Submissions rejected by the rate limiter",
		},
	)

	// Session metrics
	SessionsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_connected",
			Help: "Currently connected sessions on this worker",
		},
	)

	SessionsRetained = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_retained",
			Help: "Disconnected sessions held for fast recovery",
		},
	)
)
