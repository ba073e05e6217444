// Package supportdesk registers the customer support chat service: the
// websocket endpoint, the REST API, probes and metrics. It integrates with
// gomain through Register and Shutdown.
package supportdesk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/real-rm/goconfig"
	"github.com/real-rm/golog"
	"github.com/real-rm/gomongo"

	"github.com/real-rm/supportdesk/internal/ai"
	"github.com/real-rm/supportdesk/internal/auth"
	"github.com/real-rm/supportdesk/internal/chat"
	"github.com/real-rm/supportdesk/internal/config"
	"github.com/real-rm/supportdesk/internal/constants"
	"github.com/real-rm/supportdesk/internal/escalation"
	"github.com/real-rm/supportdesk/internal/notify"
	"github.com/real-rm/supportdesk/internal/pubsub"
	"github.com/real-rm/supportdesk/internal/ratelimit"
	"github.com/real-rm/supportdesk/internal/registry"
	"github.com/real-rm/supportdesk/internal/room"
	"github.com/real-rm/supportdesk/internal/router"
	"github.com/real-rm/supportdesk/internal/storage"
	"github.com/real-rm/supportdesk/internal/util"
	"github.com/real-rm/supportdesk/internal/websocket"
)

var (
	globalService *Service
	shutdownMu    sync.Mutex
)

// eventBus is the part of *pubsub.Bus the service manages directly.
type eventBus interface {
	Connected() bool
	Close() error
}

// Service holds every component of one registered instance.
type Service struct {
	cfg           *config.Config
	store         storage.Store
	registry      *registry.Registry
	rooms         *room.Router
	bus           eventBus
	coord         *chat.Coordinator
	assistant     *ai.Assistant
	bridge        *escalation.Bridge
	router        *router.MessageRouter
	wsHandler     *websocket.Handler
	validator     *auth.JWTValidator
	msgLimiter    *ratelimit.WindowLimiter
	apiLimiter    *ratelimit.WindowLimiter
	publicLimiter *ratelimit.WindowLimiter
	logger        *golog.Logger
}

// Register registers the supportdesk service with the gomain router.
func Register(r *gin.Engine, accessor *goconfig.ConfigAccessor, logger *golog.Logger, mongo *gomongo.Mongo) error {
	sdLogger := logger.WithGroup("supportdesk")
	sdLogger.Info("Initializing supportdesk service")

	cfg, err := config.Load(accessor)
	if err != nil {
		sdLogger.Error("Configuration validation failed", "error", err)
		return err
	}
	if mongo == nil {
		return errors.New("mongo client is required")
	}

	mongoStore, err := storage.NewMongoStore(mongo, cfg.Server.Database, sdLogger, cfg.Server.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	ctx, cancel := util.NewTimeoutContext(constants.LongContextTimeout)
	defer cancel()
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}
	if len(cfg.Server.EncryptionKey) > 0 {
		sdLogger.Info("Message encryption enabled", "key_length", len(cfg.Server.EncryptionKey))
	} else {
		sdLogger.Warn("No encryption key configured, messages will be stored unencrypted")
	}

	svc, err := newService(ctx, cfg, mongoStore, sdLogger)
	if err != nil {
		return err
	}
	svc.mount(r)

	// Replace any earlier instance so repeated Register calls do not leak
	// cleanup goroutines.
	shutdownMu.Lock()
	prev := globalService
	globalService = svc
	shutdownMu.Unlock()
	if prev != nil {
		_ = prev.stop(context.Background())
	}

	sdLogger.Info("Supportdesk service registered successfully",
		"websocket_endpoint", cfg.Server.PathPrefix+"/ws",
		"health_endpoints", cfg.Server.PathPrefix+"/healthz, "+cfg.Server.PathPrefix+"/readyz",
		"metrics_endpoint", cfg.Server.PathPrefix+"/metrics/prometheus",
		"bus", cfg.Bus.Enabled(),
		"ai_configured", svc.assistant.Configured())
	return nil
}

// newService builds the component graph on top of store.
func newService(ctx context.Context, cfg *config.Config, store storage.Store, logger *golog.Logger) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		store:     store,
		registry:  registry.New(logger),
		rooms:     room.NewRouter(logger),
		validator: auth.NewJWTValidator(cfg.Server.JWTSecret),
		logger:    logger,
	}

	local := notify.NewLocal(s.registry, s.rooms)
	var notifier notify.Notifier = local
	if cfg.Bus.Enabled() {
		bus, err := pubsub.NewBus(ctx, pubsub.Config{
			URL:      cfg.Bus.URL,
			Exchange: cfg.Bus.Exchange,
			Workers:  cfg.Bus.Workers,
			Prefetch: constants.DefaultBusPrefetch,
		}, local, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start event bus: %w", err)
		}
		s.bus = bus
		notifier = bus
	} else {
		logger.Info("No bus configured, events are delivered to this process only")
	}

	s.coord = chat.NewCoordinator(store, notifier, logger, chat.Options{
		Mode:           cfg.Assignment.Mode,
		AssignOnOnline: cfg.Assignment.AssignOnOnline,
		DrainLimit:     cfg.Assignment.DrainLimit,
	})

	assistant, err := newAssistant(cfg.AI, logger)
	if err != nil {
		s.closeBus()
		return nil, err
	}
	s.assistant = assistant
	s.bridge = escalation.NewBridge(s.coord, store, notifier, assistant, logger)

	s.msgLimiter = ratelimit.NewWindowLimiter("messages", constants.DefaultRateWindow, cfg.Server.MessageRateLimit, ratelimit.WithLogger(logger))
	s.apiLimiter = ratelimit.NewWindowLimiter("api", constants.DefaultRateWindow, constants.DefaultAdminRateLimit, ratelimit.WithLogger(logger))
	s.publicLimiter = ratelimit.NewWindowLimiter("public", constants.DefaultRateWindow, constants.PublicEndpointRate, ratelimit.WithLogger(logger))

	s.router = router.NewMessageRouter(s.coord, s.rooms, s.msgLimiter, logger)
	s.wsHandler = websocket.NewHandler(s.validator, s.registry, s.router, logger,
		cfg.Server.MaxMessageSize, cfg.Server.MaxConnectionsPerUser)
	if len(cfg.Server.AllowedOrigins) > 0 {
		s.wsHandler.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	} else {
		logger.Warn("No allowed origins configured, allowing all origins (development mode)")
	}

	s.msgLimiter.StartCleanup()
	s.apiLimiter.StartCleanup()
	s.publicLimiter.StartCleanup()
	return s, nil
}

func newAssistant(cfg config.AIConfig, logger *golog.Logger) (*ai.Assistant, error) {
	persona, err := ai.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load AI persona: %w", err)
	}

	var responder ai.Responder
	openAI, err := ai.NewOpenAIResponder(ai.OpenAIConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: constants.DefaultAIMaxTokens,
	})
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		logger.Warn("No AI API key configured, AI chats escalate unless a quick response matches")
	case err != nil:
		return nil, fmt.Errorf("failed to create AI responder: %w", err)
	default:
		responder = openAI
	}
	return ai.NewAssistant(persona, responder, logger), nil
}

// mount installs middleware and routes on r.
func (s *Service) mount(r *gin.Engine) {
	cfg := s.cfg.Server

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
		s.logger.Info("CORS middleware configured", "allowed_origins", cfg.CORSAllowedOrigins)
	} else {
		s.logger.Warn("No CORS origins configured, CORS middleware not enabled")
	}

	if len(cfg.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			s.logger.Warn("Failed to set trusted proxies", "error", err)
		}
	}

	r.Use(securityHeadersMiddleware())
	r.Use(metricsMiddleware())

	g := r.Group(cfg.PathPrefix)
	g.GET("/ws", func(c *gin.Context) {
		// Move a query token into the header so it stays out of access logs.
		if token := c.Query("token"); token != "" {
			if c.Request.Header.Get(constants.HeaderAuthorization) == "" {
				c.Request.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
			}
			q := c.Request.URL.Query()
			q.Del("token")
			c.Request.URL.RawQuery = q.Encode()
		}
		s.wsHandler.HandleWebSocket(c.Writer, c.Request)
	})

	public := publicRateLimitMiddleware(s.publicLimiter, s.logger)
	g.GET("/healthz", public, handleHealthCheck)
	g.GET("/readyz", public, s.handleReadyCheck)
	g.GET("/metrics/prometheus",
		metricsNetworkMiddleware(parseNetworks(cfg.MetricsAllowedNetworks, s.logger), s.logger),
		public,
		gin.WrapH(promhttp.Handler()),
	)

	api := g.Group("")
	api.Use(authMiddleware(s.validator, s.logger))
	api.Use(apiRateLimitMiddleware(s.apiLimiter, s.logger))

	staff := requireRole(s.logger, constants.RoleAgent, constants.RoleAdmin)
	api.POST("/chat", requireRole(s.logger, constants.RoleCustomer), s.handleStartChat)
	api.GET("/chat", s.handleListChats)
	api.GET("/chat/:sessionID", s.handleGetChat)
	api.POST("/chat/:sessionID/messages", s.handlePostMessage)
	api.DELETE("/chat/:sessionID", s.handleEndChat)
	api.POST("/chat/:sessionID/claim", staff, s.handleClaim)
	api.POST("/chat/:sessionID/assign", staff, s.handleAutoAssign)
	api.POST("/chat/:sessionID/convert", staff, s.handleConvert)
	api.POST("/chat/:sessionID/escalate", requireRole(s.logger, constants.RoleCustomer, constants.RoleAgent), s.handleEscalate)
	api.POST("/ai-chat", requireRole(s.logger, constants.RoleCustomer), s.handleAIChat)
	api.POST("/tickets/:ticketID/assign", staff, s.handleAssignTicket)
	api.PUT("/tickets/:ticketID/agent", requireRole(s.logger, constants.RoleAdmin), s.handleReassignTicket)
	api.PATCH("/agents/me/status", requireRole(s.logger, constants.RoleAgent), s.handleAgentStatus)
	api.GET("/agents/online", staff, s.handleOnlineAgents)

	s.logger.Info("Using HTTP path prefix", "prefix", cfg.PathPrefix)
}

// stop closes sockets, stops limiter cleanup and closes the bus.
func (s *Service) stop(ctx context.Context) error {
	var err error
	if s.wsHandler != nil {
		if werr := s.wsHandler.ShutdownWithContext(ctx); werr != nil {
			s.logger.Warn("WebSocket handler shutdown error", "error", werr)
			err = werr
		}
	}
	for _, l := range []*ratelimit.WindowLimiter{s.msgLimiter, s.apiLimiter, s.publicLimiter} {
		if l != nil {
			l.StopCleanup()
		}
	}
	s.closeBus()
	return err
}

func (s *Service) closeBus() {
	if s.bus == nil {
		return
	}
	if err := s.bus.Close(); err != nil {
		s.logger.Warn("Event bus close error", "error", err)
	}
	s.bus = nil
}

// Shutdown gracefully shuts down the supportdesk service. It closes all
// websocket connections within ctx's deadline.
func Shutdown(ctx context.Context) error {
	shutdownMu.Lock()
	svc := globalService
	globalService = nil
	shutdownMu.Unlock()

	if svc == nil {
		return nil
	}
	svc.logger.Info("Starting graceful shutdown of supportdesk service")
	err := svc.stop(ctx)
	svc.logger.Info("Supportdesk service shutdown complete")
	return err
}
