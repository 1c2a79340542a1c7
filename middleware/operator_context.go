// middleware/operator_context.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// OperatorContextMiddleware extracts the operator identity a terminal sends
// with each mutation. The ledger works without it, but recorded fights and
// fee payments carry the operator when present.
func OperatorContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		operatorID := c.Get("X-Operator-ID")
		terminalID := c.Get("X-Terminal-ID")

		c.Locals("operator_id", operatorID)
		c.Locals("terminal_id", terminalID)

		if operatorID != "" {
			log.Printf("👤 [OPERATOR] OperatorID=%s TerminalID=%s | Path: %s",
				operatorID, terminalID, c.Path())
		}

		return c.Next()
	}
}
