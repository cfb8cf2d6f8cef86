package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
	"gradreach/worker"
)

// Sender dispatches approved batches. Wired by main; a nil Sender means
// send endpoints report the service as unavailable.
var Sender *worker.SendWorker

type CreateBatchRequest struct {
	Name string `json:"name" validate:"omitempty,max=200"`
}

type BatchMemberRequest struct {
	EmailID uint `json:"email_id" validate:"required"`
}

func CreateEmailBatch(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req CreateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	batch, err := utils.CreateBatch(config.DB, user.ID, req.Name)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create batch", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(batch))
}

func ListEmailBatches(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := config.DB.Model(&models.EmailBatch{}).Where("user_id = ?", user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count batches", err)
	}

	var batches []models.EmailBatch
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&batches).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list batches", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  batches,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func GetEmailBatch(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	batch, err := loadBatch(c, user.ID)
	if err != nil {
		return err
	}

	if err := config.DB.Preload("Professor").
		Where("batch_id = ?", batch.ID).
		Find(&batch.Emails).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load batch emails", err)
	}

	return c.JSON(utils.SuccessResponse(batch))
}

// AddBatchEmail attaches one of the user's draft emails to an open batch
func AddBatchEmail(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	batch, err := loadBatch(c, user.ID)
	if err != nil {
		return err
	}

	var req BatchMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var email models.Email
	if err := config.DB.Where("id = ? AND user_id = ?", req.EmailID, user.ID).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Email not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load email", err)
	}

	if err := utils.AddEmailToBatch(config.DB, batch, &email); err != nil {
		switch {
		case errors.Is(err, models.ErrBatchClosed):
			return utils.ErrorResponse(c, fiber.StatusConflict, "Batch no longer accepts changes", nil)
		case errors.Is(err, models.ErrMemberNotDraft):
			return utils.ErrorResponse(c, fiber.StatusConflict, "Only draft emails can join a batch", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add email to batch", err)
	}

	return c.JSON(utils.SuccessResponse(batch))
}

func RemoveBatchEmail(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	batch, err := loadBatch(c, user.ID)
	if err != nil {
		return err
	}

	emailID := utils.ParseUint(c.Params("emailId"))
	var email models.Email
	if err := config.DB.Where("id = ? AND user_id = ?", emailID, user.ID).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Email not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load email", err)
	}

	if err := utils.RemoveEmailFromBatch(config.DB, batch, &email); err != nil {
		if errors.Is(err, models.ErrBatchClosed) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Batch no longer accepts changes", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	return c.JSON(utils.SuccessResponse(batch))
}

// ApproveEmailBatch approves every draft in the batch in one shot. Members
// blocked by the duplicate-outreach guard come back in the skipped list.
func ApproveEmailBatch(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	batch, err := loadBatch(c, user.ID)
	if err != nil {
		return err
	}

	result, err := utils.ApproveBatch(config.DB, batch)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBatchClosed):
			return utils.ErrorResponse(c, fiber.StatusConflict, "Batch is not in draft status", nil)
		case errors.Is(err, models.ErrEmptyBatch):
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Batch has no approvable emails", nil)
		case errors.Is(err, models.ErrMemberNotDraft):
			return utils.ErrorResponse(c, fiber.StatusConflict, err.Error(), nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to approve batch", err)
	}

	return c.JSON(utils.SuccessResponse(result))
}

// SendEmailBatch kicks off delivery of an approved batch in the background
// and returns immediately. Progress is available over the websocket feed
// and in the batch counters.
func SendEmailBatch(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if Sender == nil {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Sending is not configured", nil)
	}

	batch, err := loadBatch(c, user.ID)
	if err != nil {
		return err
	}

	if batch.Status != models.BatchStatusApproved {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Only approved batches can be sent", nil)
	}

	batchID := batch.ID
	go func() {
		report, err := Sender.SendBatch(context.Background(), batchID)
		if err != nil {
			utils.LogError(err, "batch send failed", map[string]interface{}{"batch_id": batchID})
			return
		}
		utils.LogEvent("batch_send_finished", map[string]interface{}{
			"batch_id": batchID,
			"sent":     report.Sent,
			"failed":   report.Failed,
			"deferred": report.QuotaDeferred,
		})
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":  true,
		"message":  "Batch send started",
		"batch_id": batchID,
	})
}

func CancelEmailBatch(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	batch, err := loadBatch(c, user.ID)
	if err != nil {
		return err
	}

	if err := utils.CancelBatch(config.DB, batch); err != nil {
		if errors.Is(err, models.ErrInvalidBatchState) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "Batch already finished", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to cancel batch", err)
	}

	return c.JSON(utils.SuccessResponse(batch))
}

// GetBatchReport returns per-email delivery outcomes for a batch
func GetBatchReport(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	batch, err := loadBatch(c, user.ID)
	if err != nil {
		return err
	}

	type emailOutcome struct {
		EmailID     uint   `json:"email_id"`
		ProfessorID uint   `json:"professor_id"`
		Status      string `json:"status"`
		Attempts    int    `json:"attempts"`
		LastError   string `json:"last_error,omitempty"`
	}

	var outcomes []emailOutcome
	if err := config.DB.Model(&models.Email{}).
		Select("id AS email_id, professor_id, status, attempts, last_error").
		Where("batch_id = ?", batch.ID).
		Order("id ASC").
		Scan(&outcomes).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load batch report", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"batch":  batch,
		"emails": outcomes,
	}))
}

// loadBatch fetches the batch in the :id param, scoped to the user. It
// writes the error response itself so handlers can just return.
func loadBatch(c *fiber.Ctx, userID uint) (*models.EmailBatch, error) {
	id := utils.ParseUint(c.Params("id"))

	var batch models.EmailBatch
	if err := config.DB.Where("id = ? AND user_id = ?", id, userID).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorResponse(c, fiber.StatusNotFound, "Batch not found", nil)
		}
		return nil, utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load batch", err)
	}
	return &batch, nil
}
