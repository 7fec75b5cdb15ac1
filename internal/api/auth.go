package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/project-builder/internal/auth"
)

// Auth modes.
const (
	AuthJWT  = "jwt"
	AuthNone = "none"
)

// OwnerHeader carries the caller identity when authentication is disabled.
const OwnerHeader = "X-Owner-ID"

const ownerKey = "owner"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode   string // "jwt" or "none"
	Tokens *auth.Tokens
}

// Verifier resolves a raw token to an owner id.
type Verifier interface {
	Verify(raw string) (string, error)
}

// NewAuthMiddleware resolves the caller identity and stores it in the request locals.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	var verifier Verifier
	if cfg.Tokens != nil {
		verifier = cfg.Tokens
	}

	return func(c *fiber.Ctx) error {
		if isProbe(c.Path()) || c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		if cfg.Mode == AuthNone {
			owner := strings.TrimSpace(c.Get(OwnerHeader))
			if owner == "" {
				return problemResponse(c, fiber.StatusUnauthorized,
					"missing_owner", "Unauthorized",
					OwnerHeader+" header is required")
			}
			c.Locals(ownerKey, owner)
			return c.Next()
		}

		raw, ok := bearerToken(c)
		if !ok {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		if raw == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"A bearer token or "+auth.CookieName+" cookie is required")
		}
		if verifier == nil {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_token", "Unauthorized", "Token verification is not configured")
		}

		owner, err := verifier.Verify(raw)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("unauthorized request: invalid token")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_token", "Unauthorized", err.Error())
		}
		c.Locals(ownerKey, owner)
		return c.Next()
	}
}

// bearerToken returns the token from the Authorization header, falling back
// to the token cookie. ok is false for a non-Bearer Authorization header.
func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return c.Cookies(auth.CookieName), true
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), true
}

// ownerOf returns the identity resolved by the auth middleware.
func ownerOf(c *fiber.Ctx) string {
	owner, _ := c.Locals(ownerKey).(string)
	return owner
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}
