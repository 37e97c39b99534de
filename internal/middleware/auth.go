// Package middleware provides HTTP middleware shared by the API routes.
package middleware

import (
	"crypto/subtle"
	"strings"

	"streamcode/internal/models"

	"github.com/gofiber/fiber/v2"
)

// AdminTokenRequired guards operator routes with a static bearer token.
// An empty token disables the routes entirely.
func AdminTokenRequired(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return models.RespondWithError(c, fiber.StatusNotFound, models.NewNotFoundError("Not found"))
		}

		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token"))
		}

		return c.Next()
	}
}
