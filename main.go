package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"derby-scoring-system/config"
	"derby-scoring-system/handlers"
	"derby-scoring-system/models"
	"derby-scoring-system/realtime"
	"derby-scoring-system/services"
	"derby-scoring-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	if err := utils.InitArchive(); err != nil {
		log.Fatal("failed to initialize archive storage:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.GameDay{},
		&models.FightOutcome{},
		&models.Entry{},
		&models.Registration{},
		&models.GameTypeFee{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Push channel: the websocket hub runs on its own listener beside the
	// fiber API, since gorilla upgrades need a net/http server.
	hub := realtime.NewHub()
	go hub.Run(ctx)

	reconciler := services.NewBettingReconciler(cfg.Betting)
	ledgerService := services.NewLedgerService(db, hub, reconciler, cfg.Payouts)
	registrationService := services.NewRegistrationService(db, ledgerService)

	scheduler := services.NewReconcileScheduler(ledgerService, reconciler, hub, cfg.ReconcileInterval())
	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start reconcile scheduler:", err)
	}
	defer scheduler.Stop()

	wsHandler := realtime.NewHandler(hub, ledgerService.Snapshot, ctx)
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	wsMux.HandleFunc("/health", wsHandler.HandleHealth)
	wsServer := &http.Server{Addr: cfg.Server.SyncAddr, Handler: wsMux}
	go func() {
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Sync server error: %v", err)
		}
	}()

	app := fiber.New(fiber.Config{
		AppName: "derby-scoring-system",
	})

	origins := strings.Join(splitTrim(cfg.Server.AllowedOrigins), ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Operator-ID, X-Terminal-ID",
		MaxAge:       86400,
	}))

	handlers.SetupGameDayRoutes(app, ledgerService, cfg.Server.PollRateMax, cfg.PollRateWindow())
	handlers.SetupRegistrationRoutes(app, registrationService)
	handlers.SetupExternalRoutes(app, reconciler)

	go func() {
		if err := app.Listen(cfg.Server.ListenAddr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ API server running on %s", cfg.Server.ListenAddr)
	log.Printf("✅ Sync server running on %s", cfg.Server.SyncAddr)
	log.Printf("✅ Reconciliation every %s", cfg.ReconcileInterval())
	log.Printf("✅ CORS configured for origins: %s", origins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Sync server shutdown error: %v", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
