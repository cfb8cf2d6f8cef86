package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
)

// 1x1 transparent GIF served for every pixel hit
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackOpen records a pixel hit against the email's application. The
// endpoint is unauthenticated so it always answers with the pixel, even
// when the token is bad or the email is unknown.
func TrackOpen(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")

	if utils.ValidateTrackingToken(messageID, token) {
		recordOpen(messageID)
	}

	c.Set("Content-Type", "image/gif")
	c.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	return c.Send(trackingPixel)
}

func recordOpen(messageID string) {
	var email models.Email
	err := config.DB.Where("message_id = ? AND status = ?", "<"+messageID+">", models.EmailStatusSent).
		First(&email).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			utils.LogError(err, "open tracking lookup failed", map[string]interface{}{"message_id": messageID})
		}
		return
	}

	var application models.Application
	if err := config.DB.First(&application, email.ApplicationID).Error; err != nil {
		return
	}

	// A pixel can fire before the delivery event and after a reply; only
	// move forward when the lifecycle allows it.
	if !application.CanTransitionTo(models.StatusOpened) {
		return
	}
	if err := application.TransitionTo(config.DB, models.StatusOpened); err != nil {
		if !errors.Is(err, models.ErrIllegalTransition) {
			utils.LogError(err, "open tracking transition failed", map[string]interface{}{"application_id": application.ID})
		}
		return
	}

	utils.LogEvent("email_opened", map[string]interface{}{
		"application_id": application.ID,
		"email_id":       email.ID,
	})
}
