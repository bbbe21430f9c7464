// Package api exposes the operational HTTP surface: session control,
// activity logs, trade history, and tick/stream introspection.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"zeenix-trading-bot/config"
	"zeenix-trading-bot/internal/cache"
	"zeenix-trading-bot/internal/database"
	"zeenix-trading-bot/internal/deriv"
	"zeenix-trading-bot/internal/logging"
	"zeenix-trading-bot/internal/ticks"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Syncer is the slice of the orchestrator the API needs: an immediate
// session re-sync after activation or deactivation
type Syncer interface {
	SyncNow(ctx context.Context)
}

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        config.ServerConfig
	trading    config.TradingConfig
	repo       *database.Repository
	sessions   *cache.SessionCache
	store      *ticks.Store
	gateway    *deriv.Gateway
	syncer     Syncer
	logger     *logging.Logger
}

// NewServer creates the API server
func NewServer(cfg config.ServerConfig, trading config.TradingConfig, repo *database.Repository,
	sessions *cache.SessionCache, store *ticks.Store, gateway *deriv.Gateway, syncer Syncer,
	logger *logging.Logger) *Server {

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:   router,
		cfg:      cfg,
		trading:  trading,
		repo:     repo,
		sessions: sessions,
		store:    store,
		gateway:  gateway,
		syncer:   syncer,
		logger:   logger.WithComponent("api"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/sessions/active", s.handleActiveSessions)
		api.GET("/ticks/:symbol", s.handleTicks)

		users := api.Group("/users/:id")
		{
			users.GET("/session", s.handleGetSession)
			users.POST("/session", s.handleActivateSession)
			users.DELETE("/session", s.handleDeactivateSession)
			users.GET("/logs", s.handleLogs)
			users.GET("/trades", s.handleTrades)
		}
	}
}

// Start runs the HTTP server until it is shut down
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
