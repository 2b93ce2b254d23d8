package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gympro/internal/api"
	"gympro/internal/notify"
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200 {object} api.HealthResponse
// @Router       /health [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{Status: "ok"})
}

// @Summary      Prometheus metrics
// @Tags         system
// @Produce      text/plain
// @Success      200 {string} string
// @Router       /metrics [get]
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// @Summary      Billing email queue length
// @Tags         system
// @Security     BearerAuth
// @Produce      json
// @Success      200 {object} map[string]int64
// @Router       /admin/email-queue [get]
func EmailQueueLength(emailService *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		length := emailService.QueueLength(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"length": length})
	}
}
