package models

import (
	"time"

	"gorm.io/gorm"
)

// ScrapingJob statuses
const (
	ScrapeStatusPending   = "pending"
	ScrapeStatusRunning   = "running"
	ScrapeStatusCompleted = "completed"
	ScrapeStatusFailed    = "failed"
	ScrapeStatusCancelled = "cancelled"
)

// ScrapingJob tracks one discovery run against a university website
type ScrapingJob struct {
	gorm.Model
	UserID       uint  `gorm:"not null;index" json:"user_id"`
	UniversityID *uint `gorm:"index" json:"university_id,omitempty"`

	JobType   string `gorm:"not null" json:"job_type"` // universities, professors, scholarships
	TargetURL string `json:"target_url"`
	Status    string `gorm:"not null;default:'pending';index" json:"status"`

	// Results
	ItemsFound   int    `gorm:"default:0" json:"items_found"`
	ItemsCreated int    `gorm:"default:0" json:"items_created"`
	ItemsUpdated int    `gorm:"default:0" json:"items_updated"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
