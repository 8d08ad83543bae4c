package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"incidentmap/internal/models"
)

const (
	adminRole       = "admin"
	DefaultTokenTTL = 12 * time.Hour
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

type AdminConfig struct {
	// Password is the shared admin secret in plain text.
	Password string
	// PasswordHash is an argon2id encoding from HashPassword; it wins over
	// Password when both are set.
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
}

// AdminService checks admin credentials. A bearer credential is either the
// shared secret itself or a session token issued by Login.
type AdminService interface {
	Login(password string) (string, time.Time, error)
	Authorize(bearer string) error
}

type adminService struct {
	password     string
	passwordHash string
	jwtSecret    []byte
	tokenTTL     time.Duration
	clock        Clock
	logger       *zap.Logger
}

func NewAdminService(cfg AdminConfig, clock Clock, logger *zap.Logger) (AdminService, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		b, err := generateRandomBytes(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		secret = b
		logger.Warn("admin.jwt_secret not set, sessions will not survive a restart")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.Password == "" && cfg.PasswordHash == "" {
		logger.Warn("No admin password configured, admin endpoints are disabled")
	}
	return &adminService{
		password:     cfg.Password,
		passwordHash: cfg.PasswordHash,
		jwtSecret:    secret,
		tokenTTL:     cfg.TokenTTL,
		clock:        clock,
		logger:       logger,
	}, nil
}

func (s *adminService) Login(password string) (string, time.Time, error) {
	if err := s.checkPassword(password); err != nil {
		return "", time.Time{}, err
	}

	now := s.clock.now()
	expirationTime := now.Add(s.tokenTTL)
	claims := &models.AdminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("Failed to generate JWT token", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("Admin logged in", zap.Time("expires_at", expirationTime))
	return tokenString, expirationTime, nil
}

func (s *adminService) Authorize(bearer string) error {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return ErrUnauthorized
	}
	if s.validToken(bearer) {
		return nil
	}
	return s.checkPassword(bearer)
}

func (s *adminService) validToken(tokenString string) bool {
	claims := &models.AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.clock.now))
	if err != nil || !token.Valid {
		return false
	}
	return claims.Role == adminRole
}

func (s *adminService) checkPassword(password string) error {
	var ok bool
	switch {
	case s.passwordHash != "":
		ok = verifyPassword(s.passwordHash, password)
	case s.password != "":
		ok = subtle.ConstantTimeCompare([]byte(s.password), []byte(password)) == 1
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// HashPassword encodes password as $argon2id$v=19$m=65536,t=1,p=4$salt$hash.
func HashPassword(password string) (string, error) {
	salt, err := generateRandomBytes(16)
	if err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads, encodedSalt, encodedHash), nil
}

// verifyPassword compares a plaintext password with an encoding produced by
// HashPassword.
func verifyPassword(encoded, password string) bool {
	// ["", "argon2id", "v=19", "m=65536,t=1,p=4", "salt", "hash"]
	sections := strings.Split(encoded, "$")
	if len(sections) != 6 || sections[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(sections[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(sections[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(sections[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(sections[5])
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, t, m, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func generateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
