// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"
	"log/slog"

	"github.com/amirphl/marketplace-settlement/app/dto"
	"github.com/gofiber/fiber/v3"
)

// AdminKeyHeader carries the shared admin key
const AdminKeyHeader = "X-Admin-Key"

// AuthMiddleware guards the admin routes with a shared key.
// Seller and customer identity is resolved upstream and never checked here.
type AuthMiddleware struct {
	adminKey string
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(adminKey string, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		adminKey: adminKey,
		logger:   logger,
	}
}

// AdminAuthenticate rejects requests without the configured admin key. With no key configured every request passes.
func (m *AuthMiddleware) AdminAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if m.adminKey == "" {
			return c.Next()
		}

		key := c.Get(AdminKeyHeader)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Admin key is required",
				Error:   dto.ErrorDetail{Code: "MISSING_ADMIN_KEY"},
			})
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(m.adminKey)) != 1 {
			m.logger.Warn("invalid admin key", "ip", c.IP(), "path", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid admin key",
				Error:   dto.ErrorDetail{Code: "INVALID_ADMIN_KEY"},
			})
		}

		return c.Next()
	}
}
