package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mediator-backend/internal/api"
	"mediator-backend/internal/identity"
	"mediator-backend/internal/store"
)

// UserFinder looks up login candidates by email.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*store.User, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	users     UserFinder
	jwtSecret string
	tokenTTL  time.Duration
	log       zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users UserFinder, jwtSecret string, tokenTTL time.Duration, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, tokenTTL: tokenTTL, log: log}
}

type loginResponse struct {
	AccessToken string         `json:"access_token"`
	ExpiresIn   int64          `json:"expires_in"`
	User        *identity.User `json:"user"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return api.UnauthorizedError("Email and password are required")
	}

	user, err := h.users.FindByEmail(c.UserContext(), body.Email)
	if errors.Is(err, store.ErrNotFound) {
		return api.UnauthorizedError("Invalid email or password")
	}
	if err != nil {
		return err
	}
	if !user.Active {
		return api.UnauthorizedError("Account is disabled")
	}
	if !CheckPassword(body.Password, user.PasswordHash) {
		return api.UnauthorizedError("Invalid email or password")
	}

	principal := &identity.User{ID: user.ID, Email: user.Email, Roles: user.Roles}
	token, err := GenerateAccessToken(principal, h.jwtSecret, h.tokenTTL)
	if err != nil {
		return api.NewAppError("INTERNAL_ERROR", fiber.StatusInternalServerError, "Failed to generate access token")
	}

	h.log.Info().Str("user_id", user.ID).Msg("login")
	return c.JSON(fiber.Map{"data": loginResponse{
		AccessToken: token,
		ExpiresIn:   int64(h.tokenTTL.Seconds()),
		User:        principal,
	}})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": identity.FromCtx(c)})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	g := app.Group("/api/auth")
	g.Post("/login", h.Login)
	g.Get("/me", Required(h.jwtSecret), h.Me)
}
