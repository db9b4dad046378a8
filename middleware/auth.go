package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/models"
)

const (
	// UserKey holds the authenticated *models.User in the Fiber context.
	UserKey = "user"
	// UserIDKey holds the authenticated user's id.
	UserIDKey = "user_id"
)

// TokenVerifier resolves a bearer token to a user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.User, error)
}

// Auth rejects requests without a valid bearer token.
func Auth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required")
		}

		// Tách "Bearer <token>"
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			return unauthorized(c, "Invalid authorization header format. Use: Bearer <token>")
		}

		user, err := verifier.Verify(c.UserContext(), strings.TrimSpace(tokenString))
		if err != nil {
			if apperror.Is(err, apperror.KindUnauthorized) {
				return unauthorized(c, "Invalid or expired token")
			}
			return err
		}

		c.Locals(UserKey, user)
		c.Locals(UserIDKey, user.ID)
		return c.Next()
	}
}

// CurrentUser returns the user stored by Auth, or nil outside it.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(UserKey).(*models.User)
	return user
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error:   apperror.KindUnauthorized.String(),
		Message: message,
	})
}
