package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"

	"gradreach/config"
	controller "gradreach/controllers"
	"gradreach/middleware"
	"gradreach/routes"
	"gradreach/utils"
	"gradreach/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "SERVER: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Error reporting
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("⚠️ Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// AI client backs both compatibility scoring and draft generation.
	// Without a key everything falls back to lexical scoring and the
	// draft template.
	if config.AppConfig.Gemini.APIKey != "" {
		gemini, err := utils.NewGeminiClient(ctx)
		if err != nil {
			logger.Printf("⚠️ Gemini client unavailable: %v", err)
		} else {
			controller.Matcher = gemini
			controller.Drafter = gemini
			logger.Printf("✅ Gemini client ready (model %s)", gemini.Model())
		}
	}

	// Redis backs the hourly send quota when enabled
	var rdb *redis.Client
	if config.AppConfig.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Printf("⚠️ Redis unavailable, send quota disabled: %v", err)
			rdb = nil
		}
	}

	// Send worker dispatches approved batches over SMTP
	if config.AppConfig.SMTP.Host != "" {
		sendWorker := worker.NewSendWorker(
			config.DB,
			log.New(os.Stdout, "SEND: ", log.LstdFlags),
			utils.NewSMTPDeliverer(),
			rdb,
		)
		sendWorker.OnProgress = controller.PublishBatchProgress
		controller.Sender = sendWorker
		go sendWorker.Start(ctx)
	} else {
		logger.Println("⚠️ SMTP not configured, batch sending disabled")
	}

	// Reply worker watches the IMAP inbox for professor responses
	replyWorker := worker.NewReplyWorker(config.DB, log.New(os.Stdout, "REPLY: ", log.LstdFlags))
	go replyWorker.Start(ctx)

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(app, config.DB)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Shut down cleanly on SIGINT/SIGTERM so in-flight sends can finish
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Println("🔄 Shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
