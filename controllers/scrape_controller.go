package controller

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/scraper"
	"gradreach/utils"
)

var scrapeLogger = log.New(os.Stdout, "[SCRAPER] ", log.LstdFlags)

type DiscoverUniversitiesRequest struct {
	Country string `json:"country" validate:"required,max=100"`
	Limit   int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

type ScrapeFacultyRequest struct {
	UniversityID uint   `json:"university_id" validate:"required"`
	DirectoryURL string `json:"directory_url" validate:"required,url"`
	Limit        int    `json:"limit" validate:"omitempty,min=1,max=200"`
}

// GetScrapeCountries lists the countries the discovery catalog covers
func GetScrapeCountries(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(scraper.AvailableCountries()))
}

// DiscoverUniversities seeds universities for a country and enriches each
// from its website in the background.
func DiscoverUniversities(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req DiscoverUniversitiesRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	job := models.ScrapingJob{
		UserID:  user.ID,
		JobType: "universities",
		Status:  models.ScrapeStatusPending,
	}
	if err := config.DB.Create(&job).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create scraping job", err)
	}

	go runUniversityDiscovery(job.ID, req.Country, req.Limit)

	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(job))
}

// ScrapeFaculty pulls professors from a university's faculty directory
func ScrapeFaculty(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req ScrapeFacultyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}
	if req.Limit == 0 {
		req.Limit = 50
	}

	var university models.University
	if err := config.DB.First(&university, req.UniversityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "University not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load university", err)
	}

	job := models.ScrapingJob{
		UserID:       user.ID,
		UniversityID: &university.ID,
		JobType:      "professors",
		TargetURL:    req.DirectoryURL,
		Status:       models.ScrapeStatusPending,
	}
	if err := config.DB.Create(&job).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create scraping job", err)
	}

	go runFacultyScrape(job.ID, university.ID, req.DirectoryURL, req.Limit)

	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(job))
}

// ScrapeProfessorProfile refreshes one professor's interests and
// publications from their profile page.
func ScrapeProfessorProfile(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var professor models.Professor
	if err := config.DB.First(&professor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Professor not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load professor", err)
	}

	if professor.ProfileURL == "" {
		return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Professor has no profile URL", nil)
	}

	ps := scraper.NewProfessorScraper(scrapeLogger)
	ctx, cancel := context.WithTimeout(c.Context(), 60*time.Second)
	defer cancel()

	if err := ps.ScrapeProfile(ctx, config.DB, &professor); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Profile scrape failed", err)
	}

	return c.JSON(utils.SuccessResponse(professor))
}

func GetScrapingJob(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var job models.ScrapingJob
	if err := config.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Scraping job not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load scraping job", err)
	}

	return c.JSON(utils.SuccessResponse(job))
}

// CancelScrapingJob stops a pending or running job. Work already written to
// the database stays.
func CancelScrapingJob(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	now := time.Now()
	res := config.DB.Model(&models.ScrapingJob{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, user.ID,
			[]string{models.ScrapeStatusPending, models.ScrapeStatusRunning}).
		Updates(map[string]interface{}{
			"status":       models.ScrapeStatusCancelled,
			"completed_at": now,
		})
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to cancel scraping job", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Job is not pending or running", nil)
	}

	var job models.ScrapingJob
	if err := config.DB.First(&job, id).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load scraping job", err)
	}
	return c.JSON(utils.SuccessResponse(job))
}

func ListScrapingJobs(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var jobs []models.ScrapingJob
	if err := config.DB.Where("user_id = ?", user.ID).
		Order("created_at DESC").Limit(50).
		Find(&jobs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list scraping jobs", err)
	}

	return c.JSON(utils.SuccessResponse(jobs))
}

func runUniversityDiscovery(jobID uint, country string, limit int) {
	if !startJob(jobID) {
		return
	}

	us := scraper.NewUniversityScraper(scrapeLogger)
	created, updated, err := us.DiscoverUniversities(config.DB, country, limit)
	if err != nil {
		failJob(jobID, err)
		return
	}

	// Enrich the seeded rows from their websites. Failures here are per
	// university and already recorded on the row.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var universities []models.University
	if err := config.DB.Where("country = ?", country).Limit(limit).Find(&universities).Error; err == nil {
		for i := range universities {
			if ctx.Err() != nil || jobCancelled(jobID) {
				break
			}
			if err := us.ScrapeDetails(ctx, config.DB, &universities[i]); err != nil {
				scrapeLogger.Printf("⚠️ Details scrape failed for %s: %v", universities[i].Name, err)
			}
		}
	}

	finishJob(jobID, created+updated, created, updated)
	scrapeLogger.Printf("✅ Discovery for %s done: %d created, %d updated", country, created, updated)
}

func runFacultyScrape(jobID, universityID uint, directoryURL string, limit int) {
	if !startJob(jobID) {
		return
	}

	var university models.University
	if err := config.DB.First(&university, universityID).Error; err != nil {
		failJob(jobID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	ps := scraper.NewProfessorScraper(scrapeLogger)
	found, created, err := ps.ScrapeFaculty(ctx, config.DB, &university, directoryURL, limit)
	if err != nil {
		failJob(jobID, err)
		return
	}

	finishJob(jobID, found, created, found-created)
	scrapeLogger.Printf("✅ Faculty scrape for %s done: %d found, %d created", university.Name, found, created)
}

// startJob claims a pending job. Returns false if the job was cancelled
// before the goroutine got to it.
func startJob(jobID uint) bool {
	now := time.Now()
	res := config.DB.Model(&models.ScrapingJob{}).
		Where("id = ? AND status = ?", jobID, models.ScrapeStatusPending).
		Updates(map[string]interface{}{
			"status":     models.ScrapeStatusRunning,
			"started_at": now,
		})
	return res.Error == nil && res.RowsAffected > 0
}

func jobCancelled(jobID uint) bool {
	var status string
	if err := config.DB.Model(&models.ScrapingJob{}).
		Where("id = ?", jobID).Pluck("status", &status).Error; err != nil {
		return false
	}
	return status == models.ScrapeStatusCancelled
}

// finishJob and failJob only touch jobs still running, so a concurrent
// cancel keeps its final word.
func finishJob(jobID uint, found, created, updated int) {
	now := time.Now()
	config.DB.Model(&models.ScrapingJob{}).
		Where("id = ? AND status = ?", jobID, models.ScrapeStatusRunning).
		Updates(map[string]interface{}{
			"status":        models.ScrapeStatusCompleted,
			"items_found":   found,
			"items_created": created,
			"items_updated": updated,
			"completed_at":  now,
		})
}

func failJob(jobID uint, err error) {
	now := time.Now()
	config.DB.Model(&models.ScrapingJob{}).
		Where("id = ? AND status = ?", jobID, models.ScrapeStatusRunning).
		Updates(map[string]interface{}{
			"status":        models.ScrapeStatusFailed,
			"error_message": err.Error(),
			"completed_at":  now,
		})
	utils.LogError(err, "scraping job failed", map[string]interface{}{"job_id": jobID})
}
