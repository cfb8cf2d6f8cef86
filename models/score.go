package models

import "gorm.io/gorm"

// MatchScore is one compatibility computation between a user and a professor.
// Rows are append-only: recomputation creates a fresh record so the scoring
// history is preserved, it never mutates an earlier one.
type MatchScore struct {
	gorm.Model
	UserID      uint `gorm:"not null;index" json:"user_id"`
	ProfessorID uint `gorm:"not null;index" json:"professor_id"`

	Score            int      `gorm:"not null" json:"score"` // 0-100
	MatchedInterests []string `gorm:"type:jsonb;serializer:json" json:"matched_interests"`
	Explanation      string   `gorm:"type:text" json:"explanation"`

	// Approximate is set when the score came from the lexical fallback (or
	// from empty interest sets) rather than the AI collaborator, so the UI
	// can flag it.
	Approximate bool   `gorm:"default:false" json:"approximate"`
	Reason      string `json:"reason,omitempty"` // e.g. "insufficient-data", "generation-failed"

	// Relations
	User      User      `json:"-"`
	Professor Professor `json:"-"`
}
