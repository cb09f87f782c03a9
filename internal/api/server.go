// Package api exposes the dosing engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/vanco-dosing-server/internal/cache"
	"github.com/vanco-dosing-server/internal/domain"
	"github.com/vanco-dosing-server/internal/service"
)

// HealthChecker reports the health of a backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server represents the HTTP server.
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	dosing        *service.DosingService
	store         domain.CalculationStore
	results       *cache.ResultCache
	dbHealth      HealthChecker

	router *gin.Engine
	server *http.Server
}

// Options carries the optional collaborators of the server. Store, Results
// and DBHealth may be nil depending on the deployment.
type Options struct {
	Store    domain.CalculationStore
	Results  *cache.ResultCache
	DBHealth HealthChecker
}

// NewServer creates a new HTTP server instance.
func NewServer(configManager domain.ConfigManager, logger *logrus.Logger, dosing *service.DosingService, opts Options) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(requestLogMiddleware(logger))
	router.Use(rateLimitMiddleware(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst))

	server := &Server{
		configManager: configManager,
		logger:        logger,
		dosing:        dosing,
		store:         opts.Store,
		results:       opts.Results,
		dbHealth:      opts.DBHealth,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.WithField("addr", addr).Info("HTTP server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/dose", s.handleDose)
		v1.POST("/fit", s.handleFit)
		v1.GET("/calculations", s.handleListCalculations)
		v1.GET("/calculations/export", s.handleExportCalculations)
		v1.GET("/calculations/:id", s.handleGetCalculation)
	}
}
