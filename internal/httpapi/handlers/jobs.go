package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/suPer8Hu/ai-component-studio/internal/common"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
)

func (h *Handler) PostMessageAsync(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async turns are not configured")
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	text, image, ok := h.readTurnInput(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	job, created, err := h.Svc.EnqueueTurn(ctx, uid, id, text, image, idempoKey)
	if err != nil {
		writeErr(c, err, "session not found")
		return
	}

	// Enqueue only when a new job was created
	if created {
		if err := h.Jobs.PublishTurnJob(ctx, job.ID); err != nil {
			log := logger.FromContext(ctx).With(zap.String("job_id", job.ID), zap.String("session_id", id))
			log.Error("publish turn job failed", zap.Error(err))
			if abandonErr := h.Svc.AbandonJob(ctx, job.ID, "enqueue failed"); abandonErr != nil {
				log.Error("abandon job failed", zap.Error(abandonErr))
			}
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    0,
		"message": "ok",
		"data":    gin.H{"job_id": job.ID, "status": job.Status},
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	jobID := c.Param("job_id")
	if !common.IsULID(jobID) {
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	j, err := h.Svc.GetJob(c.Request.Context(), uid, jobID)
	if err != nil {
		writeErr(c, err, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                 j.ID,
			"session_id":         j.SessionID,
			"status":             j.Status,
			"result_message_seq": j.ResultMessageSeq,
			"error":              j.Error,
			"created_at":         j.CreatedAt,
			"updated_at":         j.UpdatedAt,
		},
	})
}
