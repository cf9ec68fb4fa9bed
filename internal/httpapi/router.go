package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-component-studio/internal/common"
	"github.com/suPer8Hu/ai-component-studio/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-component-studio/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(middleware.CORS(h.Cfg.CORSOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/health", h.Health)

	// accounts
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	// preview links carry their own short-lived token for <iframe src>
	r.GET("/preview/:id", h.PublicPreview)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// sessions (JWT required)
	authGroup.GET("/sessions", h.ListSessions)
	authGroup.POST("/sessions", h.CreateSession)
	authGroup.GET("/sessions/:id", h.GetSession)
	authGroup.PATCH("/sessions/:id", h.RenameSession)
	authGroup.DELETE("/sessions/:id", h.DeleteSession)
	authGroup.POST("/sessions/:id/messages", h.PostMessage)
	authGroup.POST("/sessions/:id/messages/async", h.PostMessageAsync)
	authGroup.GET("/sessions/:id/history", h.GetHistory)
	authGroup.POST("/sessions/:id/revert/:index", h.Revert)
	authGroup.GET("/sessions/:id/preview", h.Preview)
	authGroup.POST("/sessions/:id/preview-link", h.PreviewLink)
	authGroup.GET("/sessions/:id/export", h.Export)
	authGroup.POST("/sessions/:id/exports", h.ShareExport)

	authGroup.GET("/jobs/:job_id", h.GetJob)
	return r
}
