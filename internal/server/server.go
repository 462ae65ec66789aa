package server

import (
	"time"

	"mailchat/internal/analytics"
	"mailchat/internal/auth"
	"mailchat/internal/cache"
	"mailchat/internal/chain"
	"mailchat/internal/config"
	"mailchat/internal/database"
	"mailchat/internal/handlers"
	"mailchat/internal/syncer"
	"mailchat/internal/vecstore"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Options carries the wired services the server exposes. A nil service
// degrades its routes to 503 instead of failing startup.
type Options struct {
	DB            *sqlx.DB
	Repo          vecstore.Repository
	Chain         *chain.Chain
	Engine        *syncer.Engine
	Conversations *database.ConversationService
	Analytics     *analytics.Service
}

// Server represents the application server
type Server struct {
	echo   *echo.Echo
	config *config.Config
	logger zerolog.Logger
	cache  *cache.Cache
	auth   *auth.Manager
	opts   Options
}

// New creates a new server instance
func New(cfg *config.Config, logger zerolog.Logger, opts Options) *Server {
	return &Server{
		config: cfg,
		logger: logger,
		cache:  cache.New(),
		auth:   auth.NewManager(cfg),
		opts:   opts,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	// API group with /api prefix
	api := s.echo.Group("/api")

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (root level for monitoring, plus under /api)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	api.GET("/healthz", handlers.HealthHandler(s.config.Version))
	api.GET("/healthz/db", handlers.DBHealthHandler(s.opts.DB))
	api.GET("/healthz/vector", handlers.VectorHealthHandler(s.opts.Repo, s.config.VectorBackend, s.cache))

	// A nil concrete pointer must not reach the handlers as a non-nil
	// interface value
	var asker handlers.Asker
	if s.opts.Chain != nil {
		asker = s.opts.Chain
	}
	var engine handlers.SyncRunner
	if s.opts.Engine != nil {
		engine = s.opts.Engine
	}

	s.echo.GET("/", handlers.RootHandler(s.config.Version))
	api.GET("/", handlers.RootHandler(s.config.Version))
	api.POST("/ask", handlers.AskHandler(asker))
	api.POST("/sync", handlers.SyncHandler(s.config, engine, s.opts.Analytics))
	api.GET("/sync/status", handlers.SyncStatusHandler(s.config, engine))

	// Admin endpoints; everything except login requires a bearer token
	api.POST("/admin/login", handlers.AdminLoginHandler(s.auth))

	admin := api.Group("/admin", auth.Middleware(s.auth))
	admin.GET("/sessions", handlers.ListSessionsHandler(s.opts.Conversations))
	admin.GET("/sessions/:sessionId", handlers.GetSessionHandler(s.opts.Conversations))
	admin.GET("/analytics", handlers.AnalyticsHandler(s.opts.Analytics))
	admin.POST("/sync-jobs", handlers.TriggerSyncJobHandler(s.config))
	admin.GET("/sync-jobs", handlers.ListSyncJobsHandler(s.config))
	admin.GET("/sync-jobs/:jobName", handlers.GetSyncJobStatusHandler(s.config))
	admin.POST("/reset-checkpoint", handlers.ResetCheckpointHandler(s.config, engine))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}
