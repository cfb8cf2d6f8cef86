package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
)

type UpdateDraftRequest struct {
	Subject *string `json:"subject" validate:"omitempty,max=150"`
	Body    *string `json:"body"`
}

// ListEmails returns the user's emails, filterable by status and batch
// membership for assembling review batches.
func ListEmails(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := config.DB.Model(&models.Email{}).Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if c.QueryBool("unbatched", false) {
		query = query.Where("batch_id IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count emails", err)
	}

	var emails []models.Email
	if err := query.Preload("Professor").Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&emails).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list emails", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  emails,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func GetEmail(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var email models.Email
	if err := config.DB.Preload("Professor").
		Where("id = ? AND user_id = ?", id, user.ID).
		First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Email not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load email", err)
	}

	return c.JSON(utils.SuccessResponse(email))
}

// UpdateDraftEmail lets the user rewrite a draft before approval. Edited
// drafts stop counting as AI output.
func UpdateDraftEmail(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var req UpdateDraftRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var email models.Email
	if err := config.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Email not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load email", err)
	}

	if email.Status != models.EmailStatusDraft {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Only draft emails can be edited", nil)
	}

	if req.Subject != nil {
		email.Subject = *req.Subject
	}
	if req.Body != nil {
		email.Body = *req.Body
		email.WordCount = utils.CountWords(*req.Body)
	}
	if email.Subject == "" || email.Body == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Subject and body cannot be empty", nil)
	}
	email.GeneratedByAI = false

	if err := config.DB.Save(&email).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update email", err)
	}

	return c.JSON(utils.SuccessResponse(email))
}
