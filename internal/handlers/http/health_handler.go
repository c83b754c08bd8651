package http

import (
	"net/http"
	"time"

	"bemore/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves liveness, readiness and metrics for either binary.
type HealthHandler struct {
	checker *monitoring.HealthChecker
	metrics http.Handler
	started time.Time
}

// NewHealthHandler builds the handler. metrics may be nil when Prometheus is disabled.
func NewHealthHandler(checker *monitoring.HealthChecker, metrics http.Handler) *HealthHandler {
	return &HealthHandler{checker: checker, metrics: metrics, started: time.Now()}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
}

// Health is the liveness probe. It reports the results of the last background
// checks without running them.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": h.checker.LastResults(),
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.GetReadinessStatus(c.Request.Context())
	if status.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": status.Checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": status.Checks})
}
