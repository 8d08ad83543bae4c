package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"incidentmap/internal/service"
)

// respondError maps service errors onto HTTP responses. Anything it does not
// recognise is logged and hidden behind a 500.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validationErr *service.ValidationError
		rateErr       *service.RateLimitError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.Is(err, service.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
	case errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, service.ErrReportExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Report has expired", "code": "report_expired"})
	case errors.Is(err, service.ErrDuplicateVote):
		c.JSON(http.StatusConflict, gin.H{"error": "You have already voted on this report"})
	case errors.As(err, &rateErr):
		seconds := rateErr.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Please wait before sending another message", "retryAfter": seconds})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	default:
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
