package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an applicant account in the system
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	TokenVersion int    `gorm:"default:1" json:"-"`

	// Google OAuth fields
	GoogleID       *string `gorm:"uniqueIndex" json:"google_id,omitempty"`
	GoogleImageURL *string `json:"google_image_url,omitempty"`

	// Profile information
	Name       string `gorm:"not null" json:"name"`
	Background string `gorm:"type:text" json:"background"` // e.g. "Master's student in Mechanical Engineering"
	CVPath     string `json:"cv_path"`

	// Research profile
	ResearchInterests []string `gorm:"type:jsonb;serializer:json" json:"research_interests"`
	TargetCountries   []string `gorm:"type:jsonb;serializer:json" json:"target_countries"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`

	// Relations
	Applications []Application `gorm:"foreignKey:UserID" json:"applications,omitempty"`
	Batches      []EmailBatch  `gorm:"foreignKey:UserID" json:"batches,omitempty"`
	MatchScores  []MatchScore  `gorm:"foreignKey:UserID" json:"match_scores,omitempty"`
}

// RefreshToken stores issued refresh tokens so they can be revoked
type RefreshToken struct {
	gorm.Model
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Revoked   bool      `gorm:"default:false" json:"revoked"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
}
