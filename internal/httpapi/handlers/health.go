package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-component-studio/internal/common"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// Health reports database reachability and whether a remote AI key is set.
func (h *Handler) Health(c *gin.Context) {
	dbUp := false
	if h.DB != nil {
		if sqlDB, err := h.DB.DB(); err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			dbUp = sqlDB.PingContext(ctx) == nil
			cancel()
		}
	}
	status, code := "ok", http.StatusOK
	if !dbUp {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"code":    0,
		"message": status,
		"data": gin.H{
			"status":     status,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"database":   dbUp,
			"hasAIKey":   h.Cfg.HasAIKey(),
			"aiProvider": h.Cfg.AIProvider,
		},
	})
}
