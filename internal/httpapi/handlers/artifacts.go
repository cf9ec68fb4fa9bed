package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-component-studio/internal/auth"
	"github.com/suPer8Hu/ai-component-studio/internal/common"
	"github.com/suPer8Hu/ai-component-studio/internal/export"
	"github.com/suPer8Hu/ai-component-studio/internal/preview"
	"github.com/suPer8Hu/ai-component-studio/internal/studio"
)

// versionQuery parses ?version=<history index>; absent means the current component.
func versionQuery(c *gin.Context) (int, bool) {
	v := c.Query("version")
	if v == "" {
		return -1, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "version must be a non-negative integer")
		return 0, false
	}
	return n, true
}

const previewLinkTTL = 5 * time.Minute

// Preview serves the sandboxed preview document for a component version.
func (h *Handler) Preview(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	h.renderPreview(c, uid, id)
}

// PreviewLink issues a short-lived URL an <iframe src> can load without an
// Authorization header, so the sandbox CSP header reaches the browser.
func (h *Handler) PreviewLink(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	if _, err := h.Svc.GetSession(c.Request.Context(), uid, id); err != nil {
		writeErr(c, err, "session not found")
		return
	}
	tok, exp, err := auth.SignPreviewToken(uid, id, h.Cfg.JWTSecret, previewLinkTTL)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	common.Created(c, gin.H{
		"url":       "/preview/" + id + "?token=" + url.QueryEscape(tok),
		"expiresAt": exp.UTC(),
	})
}

// PublicPreview is Preview authenticated by a preview link token.
func (h *Handler) PublicPreview(c *gin.Context) {
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	uid, sid, err := auth.ParsePreviewToken(c.Query("token"), h.Cfg.JWTSecret)
	if err != nil || sid != id {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
		return
	}
	h.renderPreview(c, uid, id)
}

func (h *Handler) renderPreview(c *gin.Context, uid uint64, id string) {
	version, ok := versionQuery(c)
	if !ok {
		return
	}
	_, comp, err := h.Svc.ResolveComponent(c.Request.Context(), uid, id, version)
	if err != nil {
		writeErr(c, err, "component not found")
		return
	}
	doc, err := preview.Render(preview.Input{JSX: comp.JSX, CSS: comp.CSS})
	if err != nil {
		writeErr(c, err, "component not found")
		return
	}
	preview.SetSandboxHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	_, _ = c.Writer.Write(doc)
}

func (h *Handler) buildBundle(c *gin.Context) (*studio.Session, *export.Bundle, bool) {
	uid, ok := mustUser(c)
	if !ok {
		return nil, nil, false
	}
	id, ok := sessionParam(c)
	if !ok {
		return nil, nil, false
	}
	sess, comp, err := h.Svc.ResolveComponent(c.Request.Context(), uid, id, -1)
	if err != nil {
		writeErr(c, err, "component not found")
		return nil, nil, false
	}
	b, err := export.Build(sess.Name, comp.JSX, comp.CSS, time.Now())
	if err != nil {
		writeErr(c, err, "component not found")
		return nil, nil, false
	}
	return sess, b, true
}

// Export downloads the current component as a zip project.
func (h *Handler) Export(c *gin.Context) {
	_, b, ok := h.buildBundle(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+b.FileName+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/zip", b.Data)
}

// ShareExport uploads the zip to object storage and returns a temporary link.
func (h *Handler) ShareExport(c *gin.Context) {
	if h.Exports == nil {
		if _, ok := mustUser(c); ok {
			common.Fail(c, http.StatusServiceUnavailable, 50302, "export storage is not configured")
		}
		return
	}
	sess, b, ok := h.buildBundle(c)
	if !ok {
		return
	}
	link, err := h.Exports.PutExport(c.Request.Context(), sess.ID, b.FileName, b.Data)
	if err != nil {
		writeErr(c, err, "component not found")
		return
	}
	common.Created(c, gin.H{"url": link, "file_name": b.FileName})
}
