// Package constants provides centralized constant definitions for the supportdesk service.
// This eliminates magic numbers and strings throughout the codebase.
package constants

import "time"

// HTTP Status Codes
const (
	StatusOK                 = 200
	StatusCreated            = 201
	StatusAccepted           = 202
	StatusTooManyRequests    = 429
	StatusServiceUnavailable = 503
)

// Timeouts for various operations
const (
	DefaultContextTimeout = 10 * time.Second // Standard database operations
	LongContextTimeout    = 30 * time.Second // Complex queries and index creation
	MongoIndexTimeout     = 30 * time.Second // MongoDB index creation
	MessageAddTimeout     = 5 * time.Second  // Appending chat messages
	SessionUpdateTimeout  = 5 * time.Second  // Status transitions
	HealthCheckTimeout    = 2 * time.Second  // Health check operations
	AIResponseTimeout     = 45 * time.Second // External AI responder call
	BusPublishTimeout     = 5 * time.Second  // Cross-process event publish
)

// Sizes and Limits
const (
	DefaultMaxMessageSize        = 65536 // 64KB per websocket frame
	EncryptionKeyLength          = 32    // AES-256 requires exactly 32 bytes
	DefaultSessionLimit          = 100   // Default number of sessions to return
	MaxSessionLimit              = 1000  // Maximum sessions per query
	DefaultMaxConnectionsPerUser = 10    // Browser tabs per user
	DefaultAdminRateLimit        = 60    // Admin requests per minute
	DefaultMessageRateLimit      = 120   // Chat messages per minute per user
	PublicEndpointRate           = 60    // Requests per minute for healthz, readyz, metrics
	MaxRetryAttempts             = 3     // Maximum retry attempts for transient errors
	DefaultDrainLimit            = 20    // Waiting sessions assigned when an agent comes online
	SendBufferSize               = 256   // Outbound frames buffered per connection
	MaxContentLength             = 10000 // Characters per chat message
	DefaultBusWorkers            = 4
	DefaultBusPrefetch           = 32
)

// HTTP Server Timeouts (for standalone server mode)
const (
	HTTPReadTimeout     = 15 * time.Second
	HTTPWriteTimeout    = 60 * time.Second
	HTTPIdleTimeout     = 120 * time.Second
	HTTPShutdownTimeout = 20 * time.Second
)

// Durations for background operations
const (
	DefaultRateWindow      = 1 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
	InitialRetryDelay      = 100 * time.Millisecond
	MaxRetryDelay          = 2 * time.Second
	RetryMultiplier        = 2.0
	BusDialDelay           = 500 * time.Millisecond
	BusDialAttempts        = 5
	BusReconnectBase       = 1 * time.Second
	BusReconnectCap        = 30 * time.Second
	BusReconnectJitter     = 25 // percent
)

// Role Names for authorization
const (
	RoleCustomer = "customer"
	RoleAgent    = "agent"
	RoleAdmin    = "admin"
)

// Default Configuration Values
const (
	DefaultDatabase     = "support"
	DefaultPort         = 8080
	DefaultLogLevel     = "info"
	DefaultLogDir       = "logs"
	DefaultPathPrefix   = "/support"
	DefaultExchange     = "supportdesk.events"
	DefaultAIBaseURL    = "https://api.openai.com/v1"
	DefaultAIModel      = "gpt-4o-mini"
	DefaultAIMaxTokens  = 500
	DefaultWorkloadMode = "combined"
)

// MongoDB collection names
const (
	CollSessions = "chat_sessions"
	CollMessages = "chat_messages"
	CollTickets  = "tickets"
	CollAgents   = "agents"
	CollCounters = "counters"
)

// MongoDB field names
const (
	MongoFieldID           = "_id"
	MongoFieldStatus       = "status"
	MongoFieldCustomerID   = "custId"
	MongoFieldCustomerName = "custNm"
	MongoFieldAgentID      = "agentId"
	MongoFieldAgentName    = "agentNm"
	MongoFieldStartedAt    = "ts"
	MongoFieldEndedAt      = "endTs"
	MongoFieldSeq          = "seq"
	MongoFieldSessionID    = "sid"
	MongoFieldTicketID     = "ticketId"
	MongoFieldTicketNumber = "ticketNo"
	MongoFieldLocked       = "locked"
	MongoFieldRole         = "role"
	MongoFieldName         = "nm"
	MongoFieldUpdatedAt    = "updTs"
)

// MongoDB Index Names
const (
	IndexSessionStatus   = "idx_status_started"
	IndexSessionCustomer = "idx_customer"
	IndexSessionAgent    = "idx_agent_status"
	IndexMessageSession  = "idx_session_seq"
	IndexTicketAgent     = "idx_ticket_agent_status"
	IndexAgentPresence   = "idx_agent_role_status"
)

// HTTP Headers
const (
	HeaderAuthorization = "Authorization"
	HeaderRetryAfter    = "Retry-After"
)

// Error Messages
const (
	ErrMsgRateLimitExceeded = "Too many requests. Please try again later."
	ErrMsgSessionIDRequired = "Session ID is required"
	ErrMsgTicketIDRequired  = "Ticket ID is required"
	ErrMsgSessionEnded      = "Chat session has ended"
)

// Weak Secrets for validation (security check)
var WeakSecrets = []string{
	"secret", "test", "test123", "password", "admin",
	"changeme", "default", "example", "demo", "12345",
	"placeholder",
}

// Minimum Security Requirements
const (
	MinJWTSecretLength = 32
)

// Retry After Calculation
const (
	MillisecondsPerSecond = 1000
	MinRetryAfterSeconds  = 1
)

// Network configuration defaults
const (
	DefaultTrustedProxies         = "10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"
	DefaultMetricsAllowedNetworks = "10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8"
)
