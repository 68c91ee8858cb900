// Package handlers implements the HTTP endpoints of the memory service.
package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memora-ai/memora"
)

// Build information, settable at build time using ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	memory *memora.Memory
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(m *memora.Memory) *HealthHandler {
	return &HealthHandler{memory: m}
}

// HealthCheck handles GET /health, a basic liveness check.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "memora",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// LivenessCheck handles GET /live for orchestrator probes.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ReadinessCheck handles GET /ready. The store is probed with a lookup of an
// id that cannot exist; a not-found answer proves connectivity.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	response := gin.H{
		"status":    "ready",
		"service":   "memora",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	start := time.Now()
	_, err := h.memory.Get(c.Request.Context(), "readiness-probe-nonexistent-id")
	if err != nil && c.Request.Context().Err() != nil {
		response["status"] = "not ready"
		response["store"] = gin.H{"status": "unhealthy", "duration": time.Since(start).String()}
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	response["store"] = gin.H{"status": "healthy", "duration": time.Since(start).String()}
	c.JSON(http.StatusOK, response)
}

// VersionInfo handles GET /version.
func (h *HealthHandler) VersionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": GoVersion,
	})
}
