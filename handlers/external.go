package handlers

import (
	"github.com/gofiber/fiber/v2"

	"derby-scoring-system/services"
)

// SetupExternalRoutes exposes the external betting reconciler's view.
func SetupExternalRoutes(app *fiber.App, reconciler *services.BettingReconciler) {
	app.Get("/external/betting-summary", reconciler.GetBettingSummary)
}
