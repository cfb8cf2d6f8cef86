package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
)

// Matcher is the AI scorer shared by the professor endpoints. It is nil
// until main wires a Gemini client; scoring then runs on the lexical
// fallback.
var Matcher utils.TextGenerator

type CreateProfessorRequest struct {
	UniversityID      uint     `json:"university_id" validate:"required"`
	Name              string   `json:"name" validate:"required,max=200"`
	Title             string   `json:"title" validate:"omitempty,max=100"`
	Email             string   `json:"email" validate:"omitempty,email"`
	Department        string   `json:"department" validate:"omitempty,max=200"`
	ResearchInterests []string `json:"research_interests"`
	Publications      []string `json:"publications"`
	ProfileURL        string   `json:"profile_url" validate:"omitempty,url"`
	GoogleScholarURL  string   `json:"google_scholar_url" validate:"omitempty,url"`
	AcceptingStudents *bool    `json:"accepting_students"`
}

type BatchMatchRequest struct {
	ProfessorIDs []uint `json:"professor_ids" validate:"required,min=1,max=100"`
}

func ListProfessors(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := config.DB.Model(&models.Professor{})

	if uniID := c.QueryInt("university_id", 0); uniID > 0 {
		query = query.Where("university_id = ?", uniID)
	}
	if c.QueryBool("accepting_students", false) {
		query = query.Where("accepting_students = ?", true)
	}
	if c.QueryBool("verified_email", false) {
		query = query.Where("email_verified = ?", true)
	}
	if minScore := c.QueryInt("min_score", 0); minScore > 0 {
		query = query.Where("match_score >= ?", minScore)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count professors", err)
	}

	var professors []models.Professor
	if err := query.Order("match_score DESC NULLS LAST, name ASC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&professors).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list professors", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  professors,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

func GetProfessor(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var professor models.Professor
	if err := config.DB.Preload("University").First(&professor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Professor not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load professor", err)
	}

	return c.JSON(utils.SuccessResponse(professor))
}

func CreateProfessor(c *fiber.Ctx) error {
	var req CreateProfessorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var university models.University
	if err := config.DB.First(&university, req.UniversityID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "University not found", nil)
	}

	accepting := true
	if req.AcceptingStudents != nil {
		accepting = *req.AcceptingStudents
	}

	professor := models.Professor{
		UniversityID:      req.UniversityID,
		Name:              req.Name,
		Title:             req.Title,
		Email:             req.Email,
		Department:        req.Department,
		ResearchInterests: req.ResearchInterests,
		Publications:      req.Publications,
		ProfileURL:        req.ProfileURL,
		GoogleScholarURL:  req.GoogleScholarURL,
		AcceptingStudents: accepting,
	}

	if err := config.DB.Create(&professor).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create professor", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(professor))
}

// MatchProfessor computes a fresh compatibility score between the current
// user and one professor. Every computation appends to the score history.
func MatchProfessor(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var professor models.Professor
	if err := config.DB.First(&professor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Professor not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load professor", err)
	}

	result := utils.ScoreCompatibility(c.Context(), Matcher, user, &professor)
	score, err := utils.SaveMatchScore(config.DB, user.ID, professor.ID, result)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save match score", err)
	}

	return c.JSON(utils.SuccessResponse(score))
}

// BatchMatchProfessors scores several professors in one request
func BatchMatchProfessors(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req BatchMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	var professors []models.Professor
	if err := config.DB.Where("id IN ?", req.ProfessorIDs).Find(&professors).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load professors", err)
	}
	if len(professors) == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "No professors found", nil)
	}

	scores := make([]*models.MatchScore, 0, len(professors))
	for i := range professors {
		result := utils.ScoreCompatibility(c.Context(), Matcher, user, &professors[i])
		score, err := utils.SaveMatchScore(config.DB, user.ID, professors[i].ID, result)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save match score", err)
		}
		scores = append(scores, score)
	}

	return c.JSON(utils.SuccessResponse(scores))
}

// GetMatchHistory returns the append-only score history for a professor
func GetMatchHistory(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	id := utils.ParseUint(c.Params("id"))

	var scores []models.MatchScore
	if err := config.DB.Where("user_id = ? AND professor_id = ?", user.ID, id).
		Order("created_at DESC").Find(&scores).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load match history", err)
	}

	return c.JSON(utils.SuccessResponse(scores))
}

// VerifyProfessor checks that the professor's email address is deliverable
func VerifyProfessor(c *fiber.Ctx) error {
	id := utils.ParseUint(c.Params("id"))

	var professor models.Professor
	if err := config.DB.First(&professor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Professor not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load professor", err)
	}

	result, err := utils.VerifyProfessorEmail(config.DB, &professor)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Verification failed", err)
	}

	return c.JSON(utils.SuccessResponse(result))
}
