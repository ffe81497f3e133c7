package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"mediator-backend/internal/api"
	"mediator-backend/internal/identity"
)

// Required rejects requests without a valid bearer token and sets the
// principal on the rest.
func Required(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return api.UnauthorizedError("Missing auth token")
		}
		user, err := userFromHeader(header, secret)
		if err != nil {
			return err
		}
		identity.Set(c, user)
		return c.Next()
	}
}

// Optional sets the principal when a valid bearer token is present. It never
// rejects: a missing or invalid token leaves the request anonymous.
func Optional(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			if user, err := userFromHeader(header, secret); err == nil {
				identity.Set(c, user)
			}
		}
		return c.Next()
	}
}

// RequireAdmin checks the authenticated user has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := identity.FromCtx(c)
		if user == nil {
			return api.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return api.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

func userFromHeader(header, secret string) (*identity.User, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, api.UnauthorizedError("Invalid auth header format")
	}

	claims, err := ParseAccessToken(strings.TrimSpace(parts[1]), secret)
	if err != nil {
		return nil, api.UnauthorizedError("Invalid or expired token")
	}
	return claims.User(), nil
}
