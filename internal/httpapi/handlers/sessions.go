package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-component-studio/internal/common"
)

type sessionNameReq struct {
	Name string `json:"name"`
}

func (h *Handler) ListSessions(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	list, err := h.Svc.ListSummaries(c.Request.Context(), uid)
	if err != nil {
		writeErr(c, err, "session not found")
		return
	}
	common.OK(c, list)
}

func (h *Handler) CreateSession(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	var req sessionNameReq
	_ = c.ShouldBindJSON(&req) // allow empty body

	sess, err := h.Svc.CreateSession(c.Request.Context(), uid, req.Name)
	if err != nil {
		writeErr(c, err, "session not found")
		return
	}
	common.Created(c, sess)
}

func (h *Handler) GetSession(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	sess, err := h.Svc.GetSession(c.Request.Context(), uid, id)
	if err != nil {
		writeErr(c, err, "session not found")
		return
	}
	common.OK(c, sess)
}

func (h *Handler) RenameSession(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	var req sessionNameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	sess, err := h.Svc.RenameSession(c.Request.Context(), uid, id, req.Name)
	if err != nil {
		writeErr(c, err, "session not found")
		return
	}
	common.OK(c, gin.H{"id": sess.ID, "name": sess.Name})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	if err := h.Svc.DeleteSession(c.Request.Context(), uid, id); err != nil {
		writeErr(c, err, "session not found")
		return
	}
	common.OK(c, gin.H{"id": id, "deleted": true})
}

func (h *Handler) PostMessage(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
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
	res, err := h.Svc.PostTurn(c.Request.Context(), uid, id, text, image)
	if err != nil {
		writeErr(c, err, "session not found")
		return
	}
	common.OK(c, res)
}

func (h *Handler) GetHistory(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	list, err := h.Svc.GetHistory(c.Request.Context(), uid, id)
	if err != nil {
		writeErr(c, err, "session not found")
		return
	}
	common.OK(c, list)
}

func (h *Handler) Revert(c *gin.Context) {
	uid, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := sessionParam(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "history index must be an integer")
		return
	}
	res, err := h.Svc.Revert(c.Request.Context(), uid, id, index)
	if err != nil {
		writeErr(c, err, "session not found")
		return
	}
	common.OK(c, res)
}

type postMessageReq struct {
	Content string `json:"content"`
}

// readTurnInput accepts either JSON {"content": "..."} or a multipart form
// with a "content" field and an optional "image" file.
func (h *Handler) readTurnInput(c *gin.Context) (string, []byte, bool) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req postMessageReq
		if err := c.ShouldBindJSON(&req); err != nil {
			common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
			return "", nil, false
		}
		return req.Content, nil, true
	}

	text := c.PostForm("content")
	fh, err := c.FormFile("image")
	if err != nil {
		if err == http.ErrMissingFile {
			return text, nil, true
		}
		common.Fail(c, http.StatusBadRequest, 10001, "invalid multipart form")
		return "", nil, false
	}
	f, err := fh.Open()
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid image upload")
		return "", nil, false
	}
	defer f.Close()

	limit := h.Cfg.MaxImageBytes
	if limit <= 0 {
		limit = 5 * 1024 * 1024
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid image upload")
		return "", nil, false
	}
	if int64(len(data)) > limit {
		common.Fail(c, http.StatusBadRequest, 10002, fmt.Sprintf("image larger than %d bytes", limit))
		return "", nil, false
	}
	return text, data, true
}
