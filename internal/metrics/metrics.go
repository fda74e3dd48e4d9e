package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agora_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Messaging metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"conversation_type"}, // "direct" or "group"
	)

	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agora_messages_deleted_total",
			Help: "Total messages soft deleted",
		},
	)

	ReadReceipts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_read_receipts_total",
			Help: "Total messages flipped to read",
		},
		[]string{"kind"}, // "single" or "bulk"
	)

	ConversationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_conversations_created_total",
			Help: "Total conversations created",
		},
		[]string{"conversation_type"},
	)

	// Realtime metrics
	PushEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_push_events_total",
			Help: "Total push events handed to the gateway",
		},
		[]string{"event"},
	)

	PushFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_push_failures_total",
			Help: "Total push events that could not be delivered or published",
		},
		[]string{"event"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agora_websocket_connections",
			Help: "Currently registered websocket connections",
		},
	)

	BrokerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_broker_messages_total",
			Help: "Total broker messages",
		},
		[]string{"broker", "direction"}, // direction: "out" or "in"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agora_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
