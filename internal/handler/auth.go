package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"incidentmap/internal/models"
	"incidentmap/internal/service"
)

type AuthHandler interface {
	Login(c *gin.Context)
}

type authHandler struct {
	admin  service.AdminService
	logger *zap.Logger
}

func NewAuthHandler(admin service.AdminService, logger *zap.Logger) AuthHandler {
	return &authHandler{admin: admin, logger: logger}
}

// Login handles POST /api/admin/auth. The returned token may be used as the
// bearer credential on admin routes in place of the password.
func (h *authHandler) Login(c *gin.Context) {
	var req models.AdminLoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	token, expiresAt, err := h.admin.Login(req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			h.logger.Warn("Failed admin login", zap.String("client_ip", c.ClientIP()))
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"token":      token,
		"expires_at": expiresAt,
	})
}
