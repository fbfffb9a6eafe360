package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/volthu/csms/internal/adapter/cache"
	"github.com/volthu/csms/internal/adapter/http/fiber/handlers"
	"github.com/volthu/csms/internal/adapter/http/fiber/middleware"
	v16 "github.com/volthu/csms/internal/adapter/ocpp/v16"
	"github.com/volthu/csms/internal/adapter/payment"
	"github.com/volthu/csms/internal/adapter/queue"
	"github.com/volthu/csms/internal/adapter/storage/postgres"
	"github.com/volthu/csms/internal/ports"
	"github.com/volthu/csms/internal/service/charging"
	"github.com/volthu/csms/internal/service/email"
	"github.com/volthu/csms/internal/service/intent"
	"github.com/volthu/csms/internal/service/station"
	"github.com/volthu/csms/pkg/config"
)

const serviceName = "volthu-csms"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting CSMS backend",
		zap.String("service", serviceName),
		zap.String("environment", cfg.App.Environment),
	)

	// Storage
	db, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer postgres.Close(db)

	if err := postgres.RunMigrations(db, cfg.Database); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Cache: Redis when configured, in-memory otherwise.
	var statusCache ports.Cache
	if cfg.Redis.URL != "" {
		statusCache, err = cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	} else {
		statusCache = cache.NewLocalCache(time.Minute, logger)
	}
	defer statusCache.Close()

	// Message queue for session lifecycle events.
	var messageQueue queue.MessageQueue
	if cfg.NATS.URL != "" {
		messageQueue, err = queue.NewNATSQueue(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer messageQueue.Close()
	} else {
		logger.Warn("NATS not configured, session events will not be published")
	}

	// Repositories
	chargePointRepo := postgres.NewChargePointRepository(db, logger)
	intentRepo := postgres.NewIntentRepository(db, logger)
	sessionRepo := postgres.NewSessionRepository(db, logger)
	sampleRepo := postgres.NewMeterSampleRepository(db, logger)

	// OCPP registry and outbound command path
	registry := v16.NewRegistry(cfg.OCPP.CallTimeout, logger)
	commander := v16.NewCommander(registry, logger)

	// Services
	stationService := station.NewService(chargePointRepo, sessionRepo, statusCache, station.Config{
		HeartbeatInterval: cfg.OCPP.HeartbeatInterval,
		OfflineAfter:      cfg.OCPP.OfflineAfter,
		StatusTTL:         cfg.Redis.StatusTTL,
	}, logger)

	chargingService := charging.NewService(
		chargePointRepo, sessionRepo, sampleRepo,
		commander, messageQueue,
		cfg.Payment.Pricing.PerKWhHUF,
		logger,
	)

	stripeGateway := payment.NewStripeGateway(
		cfg.Payment.Stripe.SecretKey,
		cfg.Payment.Stripe.WebhookSecret,
		cfg.App.PublicBaseURL,
		logger,
	)

	emailSender, err := email.NewService(cfg.Email, logger)
	if err != nil {
		logger.Fatal("Failed to initialize email service", zap.Error(err))
	}

	intentService := intent.NewService(
		chargePointRepo, intentRepo, sessionRepo,
		stripeGateway, commander, chargingService,
		emailSender, messageQueue,
		cfg.Payment.Stripe.Currency,
		logger,
	)

	// OCPP WebSocket server
	ocppHandlers := v16.NewHandlers(stationService, chargingService, logger)
	ocppServer := v16.NewServer(registry, ocppHandlers, logger)
	go func() {
		if err := ocppServer.Start(cfg.OCPP.Port); err != nil {
			logger.Fatal("OCPP server failed", zap.Error(err))
		}
	}()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.HTTP.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to get underlying SQL DB", zap.Error(err))
	}

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := sqlDB.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
		}
		if err := statusCache.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Cache not ready")
		}
		return c.SendString("Ready")
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	chargePointHandler := handlers.NewChargePointHandler(stationService, registry, logger)
	sessionHandler := handlers.NewSessionHandler(chargingService, intentService, logger)
	intentHandler := handlers.NewIntentHandler(intentService, logger)
	paymentHandler := handlers.NewPaymentHandler(intentService, logger)

	app.Get("/charge-points", chargePointHandler.List)
	app.Get("/charge-points/:id", chargePointHandler.Get)

	app.Post("/intents", intentHandler.Create)
	app.Post("/payments/stripe/webhook", paymentHandler.StripeWebhook)

	app.Get("/sessions", sessionHandler.List)
	app.Get("/sessions/active/by-charge-point/:id", sessionHandler.ActiveByChargePoint)
	app.Get("/sessions/:id", sessionHandler.Get)
	app.Post("/sessions/start", sessionHandler.Start)
	app.Post("/sessions/stop", sessionHandler.Stop)
	app.Post("/sessions/redeem-stop", sessionHandler.RedeemStop)

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("HTTP server forced to shut down", zap.Error(err))
	}
	if err := ocppServer.Shutdown(ctx); err != nil {
		logger.Error("OCPP server forced to shut down", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.App.Environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
