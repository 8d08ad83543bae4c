package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims defines the structure of the admin session JWT.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type AdminLoginInput struct {
	Password string `json:"password" binding:"required"`
}
