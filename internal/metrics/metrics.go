// Package metrics provides Prometheus metrics collection for the supportdesk service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnections tracks the current number of active WebSocket connections
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supportdesk_websocket_connections",
		Help: "Current number of active WebSocket connections",
	})

	// ConnectedUsers tracks the number of distinct users with at least one connection
	ConnectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supportdesk_connected_users",
		Help: "Current number of users with at least one live connection",
	})

	// FramesReceived tracks inbound websocket frames by event
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_frames_received_total",
		Help: "Total number of websocket frames received from clients",
	}, []string{"event"})

	// FramesSent tracks frames written to sockets
	FramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportdesk_frames_sent_total",
		Help: "Total number of websocket frames written to clients",
	})

	// DeliveryDropped tracks fan-out pushes that could not be queued
	DeliveryDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_delivery_dropped_total",
		Help: "Total number of frames dropped because a connection was full or closing",
	}, []string{"scope"})

	// SessionsCreated tracks chat sessions by initial status
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_sessions_created_total",
		Help: "Total number of chat sessions created",
	}, []string{"status"})

	// SessionTransitions tracks state machine transitions by target status
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_session_transitions_total",
		Help: "Total number of chat session status transitions",
	}, []string{"to"})

	// Assignments tracks selector outcomes by pool and result
	Assignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_assignments_total",
		Help: "Total number of assignment attempts by pool and outcome",
	}, []string{"pool", "outcome"})

	// Escalations tracks AI to human hand-offs by outcome
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_escalations_total",
		Help: "Total number of AI escalations by outcome",
	}, []string{"outcome"})

	// MessagesStored tracks persisted chat messages by sender type
	MessagesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_messages_stored_total",
		Help: "Total number of chat messages persisted",
	}, []string{"sender"})

	// MessageErrors tracks the total number of message processing errors
	MessageErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "supportdesk_message_errors_total",
		Help: "Total number of message processing errors",
	})

	// AIRequests tracks responder calls by result
	AIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_ai_requests_total",
		Help: "Total number of AI responder calls",
	}, []string{"result"})

	// AILatency tracks responder latency
	AILatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "supportdesk_ai_latency_seconds",
		Help:    "Latency of AI responder calls in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BusEvents tracks cross-process bus traffic
	BusEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supportdesk_bus_events_total",
		Help: "Total number of bus events by direction and result",
	}, []string{"direction", "result"})

	// BusConnected is 1 while the broker connection is up
	BusConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "supportdesk_bus_connected",
		Help: "Whether the cross-process bus is connected (1) or not (0)",
	})

	// MongoDBOperationDuration tracks store latency by operation
	MongoDBOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportdesk_mongodb_operation_duration_seconds",
		Help:    "Duration of MongoDB operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// HTTPRequestDuration tracks HTTP handler latency
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supportdesk_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method"})
)
