// Package server exposes the memory engine over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/memora-ai/memora"
	"github.com/memora-ai/memora/pkg/config"
	"github.com/memora-ai/memora/pkg/server/handlers"
	"github.com/memora-ai/memora/pkg/telemetry"
)

// Server is the HTTP front of the memory engine.
type Server struct {
	config *config.Config
	router *gin.Engine
	memory *memora.Memory
	server *http.Server
	logger *slog.Logger
}

// New creates a new server instance.
func New(cfg *config.Config, mem *memora.Memory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{config: cfg, memory: mem, logger: logger}
}

// Setup builds the router, middleware, and routes.
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.memory)
	memoryHandler := handlers.NewMemoryHandler(s.memory)

	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)
	s.router.GET("/version", healthHandler.VersionInfo)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/memories", memoryHandler.Put)
		v1.GET("/memories/:id", memoryHandler.Get)
		v1.DELETE("/memories/:id", memoryHandler.Delete)
		v1.POST("/search", memoryHandler.Search)
		v1.POST("/think", memoryHandler.Think)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")
	return s.server.Shutdown(ctx)
}

// corsMiddleware adds CORS headers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// contextMiddleware tags the request context with the metadata the telemetry
// handler records on errors.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID := c.GetHeader("X-Agent-ID")
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := telemetry.WithRequestInfo(c.Request.Context(), agentID, requestID, c.FullPath())
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
