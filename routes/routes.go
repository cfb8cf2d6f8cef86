package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "gradreach/controllers"
	"gradreach/middleware"
)

func SetupAuthRoutes(app *fiber.App, db *gorm.DB) {
	// Initialize logger
	authLogger := log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Auth routes group with logging middleware
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Public auth endpoints (no authentication required)
	auth.Post("/register", controller.Register)
	auth.Post("/login", controller.Login)
	auth.Post("/refresh", controller.RefreshToken)

	// Google OAuth routes
	auth.Get("/google", controller.GoogleOAuth)
	auth.Get("/google/callback", controller.GoogleOAuthCallback)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", controller.Logout)
	protectedAuth.Post("/change-password", controller.ChangePassword)
	protectedAuth.Get("/me", controller.GetCurrentUser)
	protectedAuth.Put("/profile", controller.UpdateProfile)

	// Log initialization
	authLogger.Println("Authentication routes initialized successfully")
}

func SetupAPIRoutes(app *fiber.App, db *gorm.DB) {
	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// University routes
	university := api.Group("/universities")
	university.Get("/", controller.ListUniversities)
	university.Post("/", controller.CreateUniversity)
	university.Get("/:id", controller.GetUniversity)
	university.Put("/:id", controller.UpdateUniversity)
	university.Delete("/:id", controller.DeleteUniversity)

	// Professor routes
	professor := api.Group("/professors")
	professor.Get("/", controller.ListProfessors)
	professor.Post("/", controller.CreateProfessor)
	professor.Post("/batch-match", controller.BatchMatchProfessors)
	professor.Get("/:id", controller.GetProfessor)
	professor.Post("/:id/match", controller.MatchProfessor)
	professor.Get("/:id/match-history", controller.GetMatchHistory)
	professor.Post("/:id/verify-email", controller.VerifyProfessor)
	professor.Post("/:id/scrape-profile", controller.ScrapeProfessorProfile)

	// Application routes
	application := api.Group("/applications")
	application.Get("/", controller.ListApplications)
	application.Post("/", controller.CreateApplication)
	application.Get("/stats", controller.GetApplicationStats)
	application.Get("/:id", controller.GetApplication)
	application.Post("/:id/transition", controller.TransitionApplication)
	application.Post("/:id/draft", controller.RegenerateDraft)
	application.Patch("/:id/notes", controller.UpdateApplicationNotes)

	// Email draft routes
	email := api.Group("/emails")
	email.Get("/", controller.ListEmails)
	email.Get("/:id", controller.GetEmail)
	email.Patch("/:id", controller.UpdateDraftEmail)

	// Batch routes
	batch := api.Group("/batches")
	batch.Get("/", controller.ListEmailBatches)
	batch.Post("/", controller.CreateEmailBatch)
	batch.Get("/:id", controller.GetEmailBatch)
	batch.Get("/:id/report", controller.GetBatchReport)
	batch.Post("/:id/emails", controller.AddBatchEmail)
	batch.Delete("/:id/emails/:emailId", controller.RemoveBatchEmail)
	batch.Post("/:id/approve", controller.ApproveEmailBatch)
	batch.Post("/:id/send", controller.SendEmailBatch)
	batch.Post("/:id/cancel", controller.CancelEmailBatch)

	// WebSocket route for batch send progress
	app.Get("/api/v1/batches/progress", websocket.New(func(c *websocket.Conn) {
		controller.HandleBatchProgressWS(c)
	}))

	// Scraping routes with rate limiting
	scrape := api.Group("/scrape", middleware.ScrapeRateLimiter())
	scrape.Get("/countries", controller.GetScrapeCountries)
	scrape.Post("/universities", controller.DiscoverUniversities)
	scrape.Post("/faculty", controller.ScrapeFaculty)
	scrape.Get("/jobs", controller.ListScrapingJobs)
	scrape.Get("/jobs/:id", controller.GetScrapingJob)
	scrape.Post("/jobs/:id/cancel", controller.CancelScrapingJob)

	// Open-tracking pixel is public by necessity
	app.Get("/track/open/:messageID/:token", controller.TrackOpen)

	// Log initialization
	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup auth routes
	SetupAuthRoutes(app, db)

	// Setup API routes
	SetupAPIRoutes(app, db)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
