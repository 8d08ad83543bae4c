package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/service"
)

type SourceHandler interface {
	ListSources(c *gin.Context)
	AddSource(c *gin.Context)
}

type sourceHandler struct {
	sources service.SourceService
	logger  *zap.Logger
}

func NewSourceHandler(sources service.SourceService, logger *zap.Logger) SourceHandler {
	return &sourceHandler{sources: sources, logger: logger}
}

func (h *sourceHandler) ListSources(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sources)
}

func (h *sourceHandler) AddSource(c *gin.Context) {
	var req models.AddSourceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	src, err := h.sources.Add(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, src)
}
