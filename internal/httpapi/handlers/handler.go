package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-component-studio/internal/common"
	"github.com/suPer8Hu/ai-component-studio/internal/config"
	"github.com/suPer8Hu/ai-component-studio/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-component-studio/internal/logger"
	"github.com/suPer8Hu/ai-component-studio/internal/studio"
)

// JobPublisher hands a queued turn job to the worker queue.
type JobPublisher interface {
	PublishTurnJob(ctx context.Context, jobID string) error
}

// ExportStore keeps exported bundles and returns a download link.
type ExportStore interface {
	PutExport(ctx context.Context, sessionID, fileName string, data []byte) (string, error)
}

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	Svc     *studio.Service
	Jobs    JobPublisher // nil: async turns disabled
	Exports ExportStore  // nil: shared exports disabled
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *studio.Service, jobs JobPublisher, exports ExportStore) *Handler {
	return &Handler{DB: db, Cfg: cfg, Svc: svc, Jobs: jobs, Exports: exports}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// mustUser writes 401 and returns false when the request carries no user.
func mustUser(c *gin.Context) (uint64, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	}
	return uid, ok
}

// sessionParam returns the :id path param; anything that is not a ULID cannot
// name a session and is answered with 404.
func sessionParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !common.IsULID(id) {
		common.Fail(c, http.StatusNotFound, 40401, "session not found")
		return "", false
	}
	return id, true
}

// writeErr maps studio errors onto the response envelope.
func writeErr(c *gin.Context, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, studio.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40401, notFoundMsg)
	case errors.Is(err, studio.ErrInvalidInput):
		common.Fail(c, http.StatusBadRequest, 10002, err.Error())
	case errors.Is(err, studio.ErrBusy):
		common.Fail(c, http.StatusConflict, 40901, "session already has a pending turn")
	default:
		logger.FromContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
