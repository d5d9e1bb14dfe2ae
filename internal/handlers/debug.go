package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courtside-chat/internal/telemetry"
)

// ConnCounter reports live websocket connection totals.
type ConnCounter interface {
	Totals() (directory, streams int)
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, counter ConnCounter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/ws-connections", func(c *gin.Context) {
		directory, streams := counter.Totals()
		c.JSON(http.StatusOK, gin.H{
			"directory": directory,
			"streams":   streams,
		})
	})
}
