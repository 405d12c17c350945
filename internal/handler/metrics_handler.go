package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studycal-api/internal/service"
	"github.com/noah-isme/studycal-api/pkg/response"
)

type sessionCounter interface {
	Len() int
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics  *service.MetricsService
	sessions sessionCounter
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, sessions sessionCounter) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, sessions: sessions}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// System godoc
// @Summary Runtime counters
// @Tags Observability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/system [get]
func (h *MetricsHandler) System(c *gin.Context) {
	snapshot := h.metrics.Snapshot()
	if h.sessions != nil {
		snapshot.ActiveSessions = h.sessions.Len()
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// Health responds with a generic OK payload for readiness/liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
