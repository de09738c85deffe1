package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/saeid-a/CareMarketBack/internal/config"
	"github.com/saeid-a/CareMarketBack/internal/database"
	"github.com/saeid-a/CareMarketBack/internal/events"
	"github.com/saeid-a/CareMarketBack/internal/logging"
	"github.com/saeid-a/CareMarketBack/internal/repository"
	"github.com/saeid-a/CareMarketBack/internal/routes"
	"github.com/saeid-a/CareMarketBack/internal/services"
	"github.com/saeid-a/CareMarketBack/internal/store"
	chatws "github.com/saeid-a/CareMarketBack/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the store
	st, err := openStore(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open store", zap.String("backend", cfg.StoreBackend()), zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			zlog.Warn("store close failed", zap.Error(err))
		}
	}()

	// 3. Wire the event hub and services
	chatHub := chatws.NewHub(zlog)
	go chatHub.Run()
	defer chatHub.Stop()

	eventHub := events.NewHub(zlog, events.WithBroadcaster(chatHub))
	deps := services.Deps{Publisher: eventHub, Logger: zlog}

	notifications := services.NewNotificationService(st, deps)
	notifications.SetDefaultLimit(cfg.NotificationsPageLimit)
	svc := routes.Services{
		Notifications: notifications,
		Chat:          services.NewChatService(st, notifications, deps),
		Appointments:  services.NewAppointmentService(st, notifications, deps),
	}

	// 4. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"store":  cfg.StoreBackend(),
		})
	})
	routes.RegisterRoutes(app, cfg, svc, chatHub)

	// 5. Start Server
	go func() {
		<-ctx.Done()
		zlog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			zlog.Warn("server shutdown failed", zap.Error(err))
		}
	}()

	zlog.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreBackend()))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Error("server failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (store.Store, error) {
	if !cfg.UseRemoteStore {
		opts := []store.LocalOption{store.WithLogger(zlog)}
		if cfg.SeedDemoData {
			opts = append(opts, store.WithSeed(store.DemoSeed()))
		}
		local := store.NewLocalStore(cfg.LocalStorePath, opts...)
		if err := local.Init(ctx); err != nil {
			return nil, err
		}
		return local, nil
	}

	pool, err := database.Connect(ctx, cfg.DBUrl, zlog)
	if err != nil {
		return nil, err
	}
	remote := repository.NewStore(pool, zlog)
	if err := remote.Init(ctx); err != nil {
		_ = remote.Close()
		return nil, err
	}
	if cfg.SeedDemoData {
		if err := remote.Seed(ctx, store.DemoSeed()); err != nil {
			_ = remote.Close()
			return nil, err
		}
	}
	return remote, nil
}
