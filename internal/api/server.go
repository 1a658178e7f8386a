// Package api exposes the HTTP surface of the server: patient and
// measurement CRUD, the evolution payload and the live-entry preview
// socket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/craniometry-server/internal/domain"
	"github.com/craniometry-server/internal/middleware"
	"github.com/craniometry-server/internal/service"
)

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	log           *logrus.Logger
	patients      domain.PatientRepository
	measurements  domain.MeasurementRepository
	evolution     *service.EvolutionService
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(
	configManager domain.ConfigManager,
	logger *logrus.Logger,
	patients domain.PatientRepository,
	measurements domain.MeasurementRepository,
	evolution *service.EvolutionService,
) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())

	server := &Server{
		configManager: configManager,
		log:           logger,
		patients:      patients,
		measurements:  measurements,
		evolution:     evolution,
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
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	authCfg := s.configManager.GetConfig().Auth
	serverCfg := s.configManager.GetConfig().Server

	authed := s.router.Group("/")
	authed.Use(middleware.Principal(authCfg))
	authed.Use(middleware.RateLimit(serverCfg))

	v1 := authed.Group("/api/v1")
	{
		v1.POST("/patients", s.handleCreatePatient)
		v1.GET("/patients", s.handleListPatients)
		v1.GET("/patients/:id", s.handleGetPatient)
		v1.PUT("/patients/:id", s.handleUpdatePatient)
		v1.DELETE("/patients/:id", s.handleDeletePatient)

		v1.POST("/patients/:id/measurements", s.handleCreateMeasurement)
		v1.GET("/patients/:id/measurements", s.handleListMeasurements)
		v1.GET("/patients/:id/evolution", s.handleEvolution)

		v1.PATCH("/measurements/:id", s.handlePatchMeasurement)
		v1.DELETE("/measurements/:id", s.handleDeleteMeasurement)
	}

	authed.GET("/ws/preview", s.handlePreview)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
