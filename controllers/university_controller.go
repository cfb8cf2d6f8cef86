package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
)

type CreateUniversityRequest struct {
	Name                 string   `json:"name" validate:"required,max=200"`
	Country              string   `json:"country" validate:"required,max=100"`
	City                 string   `json:"city" validate:"omitempty,max=100"`
	Website              string   `json:"website" validate:"omitempty,url"`
	Ranking              int      `json:"ranking"`
	ResearchAreas        []string `json:"research_areas"`
	Departments          []string `json:"departments"`
	HasScholarship       bool     `json:"has_scholarship"`
	ScholarshipDetails   string   `json:"scholarship_details"`
	ScholarshipURL       string   `json:"scholarship_url" validate:"omitempty,url"`
	ApplicationURL       string   `json:"application_url" validate:"omitempty,url"`
	AcceptsInternational *bool    `json:"accepts_international"`
}

func ListUniversities(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := config.DB.Model(&models.University{})

	if country := c.Query("country"); country != "" {
		query = query.Where("country = ?", country)
	}
	if c.QueryBool("has_scholarship", false) {
		query = query.Where("has_scholarship = ?", true)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count universities", err)
	}

	var universities []models.University
	if err := query.Order("ranking ASC, name ASC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&universities).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list universities", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  universities,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func GetUniversity(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var university models.University
	if err := config.DB.Preload("Professors").First(&university, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "University not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load university", err)
	}

	return c.JSON(utils.SuccessResponse(university))
}

func CreateUniversity(c *fiber.Ctx) error {
	var req CreateUniversityRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var existing models.University
	if err := config.DB.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "University already exists", nil)
	}

	acceptsInternational := true
	if req.AcceptsInternational != nil {
		acceptsInternational = *req.AcceptsInternational
	}

	university := models.University{
		Name:                 req.Name,
		Country:              req.Country,
		City:                 req.City,
		Website:              req.Website,
		Ranking:              req.Ranking,
		ResearchAreas:        req.ResearchAreas,
		Departments:          req.Departments,
		HasScholarship:       req.HasScholarship,
		ScholarshipDetails:   req.ScholarshipDetails,
		ScholarshipURL:       req.ScholarshipURL,
		ApplicationURL:       req.ApplicationURL,
		AcceptsInternational: acceptsInternational,
	}

	if err := config.DB.Create(&university).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create university", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(university))
}

func UpdateUniversity(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var university models.University
	if err := config.DB.First(&university, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "University not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load university", err)
	}

	var req CreateUniversityRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	university.Name = req.Name
	university.Country = req.Country
	university.City = req.City
	university.Website = req.Website
	university.Ranking = req.Ranking
	university.ResearchAreas = req.ResearchAreas
	university.Departments = req.Departments
	university.HasScholarship = req.HasScholarship
	university.ScholarshipDetails = req.ScholarshipDetails
	university.ScholarshipURL = req.ScholarshipURL
	university.ApplicationURL = req.ApplicationURL
	if req.AcceptsInternational != nil {
		university.AcceptsInternational = *req.AcceptsInternational
	}

	if err := config.DB.Save(&university).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update university", err)
	}

	return c.JSON(utils.SuccessResponse(university))
}

func DeleteUniversity(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var count int64
	if err := config.DB.Model(&models.Application{}).Where("university_id = ?", id).Count(&count).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check applications", err)
	}
	if count > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "University has applications and cannot be deleted", nil)
	}

	if err := config.DB.Delete(&models.University{}, id).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete university", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
