// middleware/terminal_auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// TerminalAuthMiddleware validates the shared Bearer token every scoring
// terminal presents. With no token configured the check is skipped, which
// keeps local development and tests free of auth setup.
func TerminalAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("TERMINAL_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Println("⚠️  TERMINAL_SERVICE_TOKEN not set — terminal auth disabled")
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [TERMINAL_AUTH] Missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "terminal authentication token missing",
			})
		}

		// Parse "Bearer <token>"
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			// no "Bearer " prefix — accept the raw value
			token = authHeader
		}

		if token != expectedToken {
			log.Printf("❌ [TERMINAL_AUTH] Invalid token for %s (got prefix: %.10s...)", c.Path(), token)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid terminal authentication token",
			})
		}

		return c.Next()
	}
}
