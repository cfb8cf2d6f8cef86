package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
)

// Drafter generates outreach email drafts. Wired to the same Gemini client
// as Matcher in main; nil means the template fallback is used.
var Drafter utils.TextGenerator

type CreateApplicationRequest struct {
	ProfessorID uint `json:"professor_id" validate:"required"`
}

type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=draft approved sending sent failed delivered opened replied rejected interview offer accepted declined"`
}

type NotesRequest struct {
	Notes string `json:"notes" validate:"max=10000"`
}

func ListApplications(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := config.DB.Model(&models.Application{}).Where("user_id = ?", user.ID)

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if uniID := c.QueryInt("university_id", 0); uniID > 0 {
		query = query.Where("university_id = ?", uniID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count applications", err)
	}

	var applications []models.Application
	if err := query.Preload("Professor").Preload("University").Preload("Email").
		Order("updated_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&applications).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list applications", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  applications,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func GetApplication(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var application models.Application
	if err := config.DB.Preload("Professor").Preload("University").Preload("Email").
		Where("id = ? AND user_id = ?", id, user.ID).
		First(&application).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Application not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load application", err)
	}

	return c.JSON(utils.SuccessResponse(application))
}

// CreateApplication opens a draft application for a professor and
// generates its first email draft. A professor with an active outreach
// cannot receive a second one.
func CreateApplication(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var professor models.Professor
	if err := config.DB.Preload("University").First(&professor, req.ProfessorID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Professor not found", nil)
	}

	if err := models.GuardDuplicateOutreach(config.DB, user.ID, professor.ID); err != nil {
		if errors.Is(err, models.ErrDuplicateOutreach) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "An active outreach to this professor already exists", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Duplicate check failed", err)
	}

	application := models.Application{
		UserID:       user.ID,
		ProfessorID:  professor.ID,
		UniversityID: professor.UniversityID,
		Status:       models.StatusDraft,
	}
	if err := config.DB.Create(&application).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create application", err)
	}

	email, err := generateEmailDraft(c, user, &professor, &application)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate draft", err)
	}

	application.Email = email
	application.EmailID = &email.ID
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(application))
}

// RegenerateDraft replaces the application's draft email with a fresh
// generation. Only one generation may run per application at a time.
func RegenerateDraft(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var application models.Application
	if err := config.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&application).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Application not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load application", err)
	}

	if application.Status != models.StatusDraft {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Only draft applications can be redrafted", nil)
	}

	var professor models.Professor
	if err := config.DB.Preload("University").First(&professor, application.ProfessorID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load professor", err)
	}

	email, err := generateEmailDraft(c, user, &professor, &application)
	if err != nil {
		if errors.Is(err, models.ErrDraftInFlight) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "A draft generation is already in progress", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate draft", err)
	}

	return c.JSON(utils.SuccessResponse(email))
}

// generateEmailDraft holds the application's single generation slot while
// producing and persisting the draft.
func generateEmailDraft(c *fiber.Ctx, user *models.User, professor *models.Professor, application *models.Application) (*models.Email, error) {
	if err := application.BeginDraftGeneration(config.DB); err != nil {
		return nil, err
	}
	defer func() {
		if err := application.EndDraftGeneration(config.DB); err != nil {
			utils.LogError(err, "failed to release draft slot", map[string]interface{}{"application_id": application.ID})
		}
	}()

	draft := utils.GenerateDraft(c.Context(), Drafter, user, professor, &professor.University)

	var email *models.Email
	err := config.DB.Transaction(func(tx *gorm.DB) error {
		// An application has at most one draft email; replace in place
		var existing models.Email
		res := tx.Where("application_id = ? AND status = ?", application.ID, models.EmailStatusDraft).
			First(&existing)
		if res.Error == nil {
			existing.Subject = draft.Subject
			existing.Body = draft.Body
			existing.GeneratedByAI = draft.GeneratedByAI
			existing.Fallback = draft.Fallback
			existing.WordCount = draft.WordCount
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			email = &existing
			return nil
		}
		if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return res.Error
		}

		email = &models.Email{
			UserID:        user.ID,
			ProfessorID:   professor.ID,
			ApplicationID: application.ID,
			Subject:       draft.Subject,
			Body:          draft.Body,
			Status:        models.EmailStatusDraft,
			GeneratedByAI: draft.GeneratedByAI,
			Fallback:      draft.Fallback,
			WordCount:     draft.WordCount,
			MessageID:     utils.NewMessageID(),
		}
		if err := tx.Create(email).Error; err != nil {
			return err
		}
		return tx.Model(&models.Application{}).Where("id = ?", application.ID).
			Update("email_id", email.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return email, nil
}

// TransitionApplication moves an application along its lifecycle
func TransitionApplication(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var req TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var application models.Application
	if err := config.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&application).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Application not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load application", err)
	}

	if err := application.TransitionTo(config.DB, req.Status); err != nil {
		if errors.Is(err, models.ErrIllegalTransition) {
			return utils.ErrorResponse(c, fiber.StatusConflict, err.Error(), nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Transition failed", err)
	}

	return c.JSON(utils.SuccessResponse(application))
}

func UpdateApplicationNotes(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var req NotesRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	res := config.DB.Model(&models.Application{}).
		Where("id = ? AND user_id = ?", id, user.ID).
		Update("notes", req.Notes)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update notes", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Application not found", nil)
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetApplicationStats aggregates the user's pipeline by status
func GetApplicationStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}

	var counts []statusCount
	if err := config.DB.Model(&models.Application{}).
		Select("status, COUNT(*) as count").
		Where("user_id = ?", user.ID).
		Group("status").
		Scan(&counts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to aggregate applications", err)
	}

	stats := fiber.Map{}
	var total int64
	for _, sc := range counts {
		stats[sc.Status] = sc.Count
		total += sc.Count
	}
	stats["total"] = total

	return c.JSON(utils.SuccessResponse(stats))
}
