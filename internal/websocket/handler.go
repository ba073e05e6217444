// Package websocket provides WebSocket connection handling with JWT authentication.
// It upgrades HTTP requests, registers each socket with the connection
// registry and hands inbound frames to the message router.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/auth"
	"github.com/real-rm/supportdesk/internal/constants"
	chaterrors "github.com/real-rm/supportdesk/internal/errors"
	"github.com/real-rm/supportdesk/internal/message"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/ratelimit"
	"github.com/real-rm/supportdesk/internal/registry"
	"github.com/real-rm/supportdesk/internal/router"
	"github.com/real-rm/supportdesk/internal/session"
	"github.com/real-rm/supportdesk/internal/util"
)

var (
	// upgrader configures the WebSocket upgrade
	// SECURITY: In production, this service MUST be deployed behind a reverse proxy
	// that terminates TLS so that clients connect over WSS.
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// CheckOrigin is set per-handler instance
	}

	// pongWait is the time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// pingPeriod is the interval for sending ping messages (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// writeWait is the time allowed to write a message to the peer
	writeWait = 10 * time.Second
)

const msgConnectionLimit = "Connection limit reached. Close an existing tab to open a new one."

// Connection is one authenticated socket.
type Connection struct {
	conn   *websocket.Conn
	id     string
	claims *auth.Claims

	// send is a buffered channel for outbound frames
	send chan []byte

	// sendMu guards closing and the close of send so SafeSend never writes
	// to a closed channel.
	sendMu  sync.RWMutex
	closing bool

	mu sync.Mutex // serializes close and control writes on conn
}

// NewConnection creates a connection without a socket, for tests.
func NewConnection(id string, claims *auth.Claims) *Connection {
	return &Connection{
		id:     id,
		claims: claims,
		send:   make(chan []byte, constants.SendBufferSize),
	}
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// UserID returns the authenticated user's id.
func (c *Connection) UserID() string { return c.claims.UserID }

// Participant returns the user as a chat participant.
func (c *Connection) Participant() session.Participant { return c.claims.Participant() }

// SafeSend queues data without blocking. It returns false when the connection
// is closing or its buffer is full.
func (c *Connection) SafeSend(data []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closing {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend stops further sends and lets the write pump drain and exit.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closing {
		c.closing = true
		close(c.send)
	}
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ReceiveForTest exposes queued frames to tests.
func (c *Connection) ReceiveForTest() <-chan []byte {
	return c.send
}

// MessageRouter handles inbound frames and socket teardown.
type MessageRouter interface {
	RouteFrame(ctx context.Context, conn router.Conn, frame *message.Frame) error
	Disconnect(conn registry.Conn)
}

// Handler manages WebSocket upgrades and the life of each connection.
type Handler struct {
	validator      *auth.JWTValidator
	registry       *registry.Registry
	router         MessageRouter
	connLimiter    *ratelimit.ConnectionLimiter
	logger         *golog.Logger
	maxMessageSize int64

	allowedOrigins map[string]bool
	mu             sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHandler creates a new WebSocket handler
func NewHandler(validator *auth.JWTValidator, reg *registry.Registry, r MessageRouter, logger *golog.Logger, maxMessageSize int64, maxConnsPerUser int) *Handler {
	if maxMessageSize <= 0 {
		maxMessageSize = constants.DefaultMaxMessageSize
	}
	if maxConnsPerUser <= 0 {
		maxConnsPerUser = constants.DefaultMaxConnectionsPerUser
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		validator:      validator,
		registry:       reg,
		router:         r,
		connLimiter:    ratelimit.NewConnectionLimiter(maxConnsPerUser),
		logger:         logger.WithGroup("websocket"),
		maxMessageSize: maxMessageSize,
		allowedOrigins: make(map[string]bool),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetAllowedOrigins configures the allowed origins for WebSocket connections
// If no origins are set, all origins are allowed (development mode)
func (h *Handler) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.allowedOrigins = make(map[string]bool)
	for _, origin := range origins {
		h.allowedOrigins[origin] = true
	}

	h.logger.Info("Configured allowed origins",
		"count", len(origins),
		"origins", origins)
}

// IsOpenOrigin returns true when no allowed origins are configured.
func (h *Handler) IsOpenOrigin() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allowedOrigins) == 0
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.allowedOrigins) == 0 {
		return true
	}
	if h.allowedOrigins[origin] {
		return true
	}

	h.logger.Warn("Origin not allowed", "origin", origin)
	return false
}

// HandleWebSocket authenticates the request, upgrades it and starts the
// read and write pumps.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, err := util.ExtractBearerToken(r.Header.Get(constants.HeaderAuthorization))
	if err != nil {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.Warn("JWT validation failed", "error", err)
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	if !h.connLimiter.Allow(claims.UserID) {
		h.logger.Warn("Connection limit exceeded", "user_id", claims.UserID)
		h.registry.Deliver(claims.UserID, message.EventNotification, &message.Notification{
			Message:   msgConnectionLimit,
			Timestamp: time.Now(),
		})
		chatErr := chaterrors.ErrConnectionLimitExceeded(5000)
		http.Error(w, chatErr.Message, http.StatusTooManyRequests)
		return
	}

	localUpgrader := upgrader
	localUpgrader.CheckOrigin = h.checkOrigin
	ws, err := localUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.connLimiter.Release(claims.UserID)
		util.LogError(h.logger, "websocket", "upgrade connection", err)
		return
	}
	ws.SetReadLimit(h.maxMessageSize)

	id, err := gonanoid.New()
	if err != nil {
		h.connLimiter.Release(claims.UserID)
		util.LogError(h.logger, "websocket", "generate connection id", err)
		_ = ws.Close()
		return
	}
	c := &Connection{
		conn:   ws,
		id:     id,
		claims: claims,
		send:   make(chan []byte, constants.SendBufferSize),
	}
	h.registry.Register(c)

	h.logger.Info("WebSocket connection established",
		"user_id", claims.UserID,
		"connection_id", c.id)

	h.wg.Add(2)
	util.SafeGo(h.logger, "readPump", func() {
		defer h.wg.Done()
		h.readPump(c)
	})
	util.SafeGo(h.logger, "writePump", func() {
		defer h.wg.Done()
		c.writePump()
	})
}

// disconnect tears down every index entry for c. It runs once, from the
// read pump.
func (h *Handler) disconnect(c *Connection) {
	if h.router != nil {
		h.router.Disconnect(c)
	}
	if _, ok := h.registry.Unregister(c.id); ok {
		h.connLimiter.Release(c.UserID())
	}
	c.closeSend()
	_ = c.Close()

	h.logger.Info("WebSocket connection closed",
		"user_id", c.UserID(),
		"connection_id", c.id,
		"remaining_connections", len(h.registry.ConnectionsFor(c.UserID())))
}

func (h *Handler) readPump(c *Connection) {
	defer h.disconnect(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				h.logger.Warn("WebSocket message size limit exceeded",
					"user_id", c.UserID(),
					"connection_id", c.id,
					"limit", h.maxMessageSize)
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
				util.LogError(h.logger, "websocket", "handle unexpected close", err,
					"user_id", c.UserID(),
					"connection_id", c.id)
			}
			return
		}

		var frame message.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			metrics.MessageErrors.Inc()
			h.sendError(c, chaterrors.ErrInvalidMessageFormat("frame is not valid JSON", err))
			continue
		}

		if h.router == nil {
			h.sendError(c, chaterrors.NewServiceError(chaterrors.ErrCodeServiceError, "Service temporarily unavailable", nil))
			continue
		}

		ctx, cancel := context.WithTimeout(h.ctx, constants.LongContextTimeout)
		err = h.router.RouteFrame(ctx, c, &frame)
		cancel()
		if err == nil {
			continue
		}

		metrics.MessageErrors.Inc()
		chatErr := h.sendError(c, err)
		if chatErr.IsFatal() {
			h.logger.Info("Fatal error, closing connection",
				"user_id", c.UserID(),
				"connection_id", c.id,
				"error_code", chatErr.Code)
			return
		}
	}
}

// sendError reports err to c only. Errors that are not ChatErrors are
// reported as a generic service error.
func (h *Handler) sendError(c *Connection, err error) *chaterrors.ChatError {
	var chatErr *chaterrors.ChatError
	if !errors.As(err, &chatErr) {
		util.LogError(h.logger, "websocket", "route frame", err,
			"user_id", c.UserID(),
			"connection_id", c.id)
		chatErr = chaterrors.NewServiceError(chaterrors.ErrCodeServiceError, "Failed to process message", err)
	} else {
		h.logger.Debug("Frame rejected",
			"user_id", c.UserID(),
			"connection_id", c.id,
			"error_code", chatErr.Code,
			"error_category", chatErr.Category)
	}

	data, encErr := message.Encode(message.EventError, chatErr.ToErrorInfo())
	if encErr != nil {
		util.LogError(h.logger, "websocket", "encode error frame", encErr)
		return chatErr
	}
	if !c.SafeSend(data) {
		h.logger.Warn("Failed to send error frame, channel full or closing",
			"user_id", c.UserID(),
			"connection_id", c.id)
	}
	return chatErr
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}
			err := c.conn.WriteMessage(websocket.TextMessage, data)
			c.mu.Unlock()
			if err != nil {
				return
			}
			metrics.FramesSent.Inc()

		case <-ticker.C:
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ShutdownWithContext sends a going-away close to every socket and waits for
// the pumps to exit or ctx to expire.
func (h *Handler) ShutdownWithContext(ctx context.Context) error {
	h.logger.Info("Shutting down WebSocket handler, closing all connections")
	h.cancel()

	var conns []*Connection
	for _, userID := range h.registry.Users() {
		for _, id := range h.registry.ConnectionsFor(userID) {
			if rc, ok := h.registry.Lookup(id); ok {
				if c, ok := rc.(*Connection); ok {
					conns = append(conns, c)
				}
			}
		}
	}

	for _, c := range conns {
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"))
		}
		c.mu.Unlock()
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("All WebSocket connections closed gracefully")
		return nil
	case <-ctx.Done():
		h.logger.Warn("Shutdown deadline exceeded, forcing closure",
			"remaining_connections", h.registry.Count())
		return ctx.Err()
	}
}
