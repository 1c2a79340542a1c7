package handlers

import (
	"github.com/gofiber/fiber/v2"

	"derby-scoring-system/middleware"
	"derby-scoring-system/services"
)

// SetupRegistrationRoutes wires entry and registration management.
func SetupRegistrationRoutes(app *fiber.App, registrationService *services.RegistrationService) {
	// 🔓 Read endpoints
	app.Get("/entries", registrationService.ListEntries)
	app.Get("/registrations", registrationService.ListRegistrations)

	// 🔐 Mutations require the terminal token
	secured := app.Group("/", middleware.TerminalAuthMiddleware(), middleware.OperatorContextMiddleware())

	secured.Post("/entries", registrationService.CreateEntry)
	secured.Patch("/entries/:id/deactivate", registrationService.DeactivateEntry)

	secured.Post("/registrations", registrationService.CreateRegistration)
	secured.Patch("/registrations/:id/pay", registrationService.PayFee)
	secured.Patch("/registrations/:id/withdraw", registrationService.WithdrawFee)
	secured.Patch("/registrations/:id/insure", registrationService.PayInsurance)
	secured.Patch("/registrations/:id/validity", registrationService.ToggleValidity)
	secured.Patch("/registrations/:id/notes", registrationService.UpdateNotes)
}
