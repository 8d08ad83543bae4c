package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/service"
)

type ChatHandler interface {
	ListMessages(c *gin.Context)
	PostMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

type chatHandler struct {
	chat   service.ChatService
	logger *zap.Logger
}

func NewChatHandler(chat service.ChatService, logger *zap.Logger) ChatHandler {
	return &chatHandler{chat: chat, logger: logger}
}

// ListMessages handles GET /api/reports/:id/messages
// Query parameters:
// - since: RFC3339 timestamp, only newer messages are returned (optional)
func (h *chatHandler) ListMessages(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			badRequest(c, "since must be an RFC3339 timestamp")
			return
		}
		since = &t
	}

	messages, err := h.chat.List(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *chatHandler) PostMessage(c *gin.Context) {
	var req models.PostMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	msg, err := h.chat.Post(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage handles DELETE /api/reports/:id/messages/:messageId (admin)
func (h *chatHandler) DeleteMessage(c *gin.Context) {
	if err := h.chat.Delete(c.Request.Context(), c.Param("id"), c.Param("messageId")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
