package models

import (
	"time"

	"gorm.io/gorm"
)

// University represents a university with PhD programs
type University struct {
	gorm.Model

	// Basic information
	Name          string `gorm:"not null;index" json:"name"`
	Country       string `gorm:"not null;index" json:"country"`
	City          string `json:"city"`
	StateProvince string `json:"state_province"`

	// Contact information
	Website      string `json:"website"`
	Domain       string `gorm:"index" json:"domain"`
	ContactEmail string `json:"contact_email"`

	// Details
	Ranking int    `json:"ranking"`
	Type    string `json:"type"` // Public, Private, etc.

	ResearchAreas []string `gorm:"type:jsonb;serializer:json" json:"research_areas"`
	Departments   []string `gorm:"type:jsonb;serializer:json" json:"departments"`

	// Scholarship information
	HasScholarship     bool   `gorm:"default:false;index" json:"has_scholarship"`
	ScholarshipDetails string `gorm:"type:text" json:"scholarship_details"`
	ScholarshipURL     string `json:"scholarship_url"`

	// Application information
	ApplicationDeadline  *time.Time `gorm:"index" json:"application_deadline"`
	ApplicationURL       string     `json:"application_url"`
	AcceptsInternational bool       `gorm:"default:true" json:"accepts_international"`

	// Scraping bookkeeping
	LastScraped    *time.Time `json:"last_scraped"`
	ScrapingStatus string     `json:"scraping_status"` // success, failed, partial
	ScrapingError  string     `gorm:"type:text" json:"scraping_error,omitempty"`

	// Metadata
	Description string `gorm:"type:text" json:"description"`
	Notes       string `gorm:"type:text" json:"notes"`

	// Relations
	Professors []Professor `gorm:"foreignKey:UniversityID" json:"professors,omitempty"`
}
