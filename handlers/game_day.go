package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"derby-scoring-system/middleware"
	"derby-scoring-system/services"
)

// SetupGameDayRoutes wires the fight ledger endpoints. The polling fallback
// endpoints sit behind a rate limiter: terminals that hammer them get a 429
// and are expected to back off exponentially.
func SetupGameDayRoutes(app *fiber.App, ledgerService *services.LedgerService, pollMax int, pollWindow time.Duration) {
	pollLimiter := limiter.New(limiter.Config{
		Max:        pollMax,
		Expiration: pollWindow,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, slow down polling",
			})
		},
	})

	// 🔓 Read endpoints, rate limited (polling fallback)
	app.Get("/game-days/today", pollLimiter, ledgerService.GetToday)
	app.Get("/game-days/today/sync", pollLimiter, ledgerService.GetSnapshot)

	// 🔓 Derived views
	app.Get("/game-days/today/selections", ledgerService.GetSelections)
	app.Get("/game-days/today/champions", ledgerService.GetChampions)
	app.Get("/game-days/today/payouts", ledgerService.GetPayoutSummary)

	// 🔐 Mutations require the terminal token
	secured := app.Group("/", middleware.TerminalAuthMiddleware(), middleware.OperatorContextMiddleware())

	secured.Post("/game-days/today/record", ledgerService.RecordOutcomeEndpoint)
	secured.Post("/game-days/today/draw", ledgerService.RecordDrawEndpoint)
	secured.Post("/game-days/today/cancel", ledgerService.CancelFightEndpoint)
	secured.Post("/game-days/today/reset", ledgerService.ResetEndpoint)

	// Bulk writes from terminals (debounced flush + legacy result merge)
	secured.Post("/game-days/today/fights", ledgerService.PostFights)
	secured.Put("/game-days/today/results", ledgerService.PutEntryResults)

	// End-of-day export
	secured.Post("/game-days/:date/archive", ledgerService.ArchiveEndpoint)
}
