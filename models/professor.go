package models

import (
	"time"

	"gorm.io/gorm"
)

// Professor represents a discovered faculty member who may receive outreach
type Professor struct {
	gorm.Model
	UniversityID uint `gorm:"not null;index" json:"university_id"`

	// Basic information
	Name       string `gorm:"not null;index" json:"name"`
	Title      string `json:"title"` // Professor, Associate Professor, etc.
	Email      string `gorm:"index" json:"email"`
	Department string `json:"department"`

	// Academic information
	ResearchInterests []string `gorm:"type:jsonb;serializer:json" json:"research_interests"`
	Publications      []string `gorm:"type:jsonb;serializer:json" json:"publications"`
	HIndex            int      `json:"h_index"`

	// Student information
	AcceptingStudents bool `gorm:"index" json:"accepting_students"`

	// Online presence
	ProfileURL       string `json:"profile_url"`
	GoogleScholarURL string `json:"google_scholar_url"`
	PersonalWebsite  string `json:"personal_website"`

	// Contact status
	LastContacted    *time.Time `gorm:"index" json:"last_contacted"`
	ContactCount     int        `gorm:"default:0" json:"contact_count"`
	ResponseReceived bool       `gorm:"default:false" json:"response_received"`

	// Contact address verification
	EmailVerified      bool   `gorm:"default:false" json:"email_verified"`
	EmailVerifyStatus  string `json:"email_verify_status"` // valid, invalid, disposable, unknown
	EmailVerifyDetails string `json:"email_verify_details,omitempty"`

	// Latest compatibility score, denormalized for listing/sorting.
	// The authoritative history lives in MatchScore rows.
	MatchScore   *int     `json:"match_score,omitempty"`
	MatchReasons []string `gorm:"type:jsonb;serializer:json" json:"match_reasons,omitempty"`

	// Scraping bookkeeping
	LastScraped    *time.Time `json:"last_scraped"`
	ScrapingStatus string     `json:"scraping_status"`

	// Relations
	University   University    `json:"-"`
	Applications []Application `gorm:"foreignKey:ProfessorID" json:"applications,omitempty"`
}
