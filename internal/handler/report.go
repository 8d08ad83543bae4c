package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/service"
)

type ReportHandler interface {
	ListReports(c *gin.Context)
	CreateReport(c *gin.Context)
	GetReport(c *gin.Context)
	UpdateReport(c *gin.Context)
	DeleteReport(c *gin.Context)
	CastVote(c *gin.Context)
}

type reportHandler struct {
	reports service.ReportService
	logger  *zap.Logger
}

func NewReportHandler(reports service.ReportService, logger *zap.Logger) ReportHandler {
	return &reportHandler{reports: reports, logger: logger}
}

// ListReports handles GET /api/reports
// Query parameters (all four or none):
// - swLat, swLng: south-west corner
// - neLat, neLng: north-east corner
func (h *reportHandler) ListReports(c *gin.Context) {
	box, err := parseBoundingBox(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	reports, err := h.reports.List(c.Request.Context(), box)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, reports)
}

func (h *reportHandler) CreateReport(c *gin.Context) {
	var req models.CreateReportInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	report, err := h.reports.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *reportHandler) GetReport(c *gin.Context) {
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// UpdateReport handles PATCH /api/reports/:id (admin)
func (h *reportHandler) UpdateReport(c *gin.Context) {
	var req models.UpdateReportInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	report, err := h.reports.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// DeleteReport handles DELETE /api/reports/:id (admin)
func (h *reportHandler) DeleteReport(c *gin.Context) {
	if err := h.reports.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CastVote handles POST /api/reports/:id/vote
func (h *reportHandler) CastVote(c *gin.Context) {
	var req models.CastVoteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	report, err := h.reports.CastVote(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type queryError string

func (e queryError) Error() string { return string(e) }

// parseBoundingBox returns nil when no corner is given.
func parseBoundingBox(c *gin.Context) (*models.BoundingBox, error) {
	keys := [4]string{"swLat", "swLng", "neLat", "neLng"}
	var (
		values  [4]float64
		present int
	)
	for i, key := range keys {
		raw, ok := c.GetQuery(key)
		if !ok {
			continue
		}
		present++
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, queryError(key + " must be a number")
		}
		values[i] = v
	}
	switch present {
	case 0:
		return nil, nil
	case len(keys):
		return &models.BoundingBox{
			SouthWestLat: values[0],
			SouthWestLng: values[1],
			NorthEastLat: values[2],
			NorthEastLng: values[3],
		}, nil
	default:
		return nil, queryError("swLat, swLng, neLat and neLng must be given together")
	}
}
