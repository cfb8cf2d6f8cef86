package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Email draft statuses
const (
	EmailStatusDraft    = "draft"
	EmailStatusApproved = "approved"
	EmailStatusSending  = "sending"
	EmailStatusSent     = "sent"
	EmailStatusFailed   = "failed"
)

// EmailBatch statuses
const (
	BatchStatusDraft     = "draft"
	BatchStatusApproved  = "approved"
	BatchStatusSending   = "sending"
	BatchStatusCompleted = "completed"
	BatchStatusCancelled = "cancelled"
)

var (
	ErrBatchClosed       = errors.New("batch is no longer accepting changes")
	ErrEmptyBatch        = errors.New("batch has no emails")
	ErrInvalidBatchState = errors.New("batch is not in a valid state for this operation")
	ErrMemberNotDraft    = errors.New("batch contains an email that is not in draft status")
)

var emailTransitions = map[string][]string{
	EmailStatusDraft:    {EmailStatusApproved},
	EmailStatusApproved: {EmailStatusSending, EmailStatusDraft},
	EmailStatusSending:  {EmailStatusSent, EmailStatusFailed},
	EmailStatusFailed:   {EmailStatusDraft},
}

// Email is one outreach message, generated or hand-written, tied to an
// application.
type Email struct {
	gorm.Model
	UserID        uint  `gorm:"not null;index" json:"user_id"`
	ProfessorID   uint  `gorm:"not null;index" json:"professor_id"`
	ApplicationID uint  `gorm:"not null;index" json:"application_id"`
	BatchID       *uint `gorm:"index" json:"batch_id,omitempty"`

	Subject string `gorm:"not null" json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`

	Status string `gorm:"not null;default:'draft';index" json:"status"`

	// Generation metadata
	GeneratedByAI bool   `gorm:"default:false" json:"generated_by_ai"`
	Fallback      bool   `gorm:"default:false" json:"fallback"` // template fallback was used
	WordCount     int    `json:"word_count"`
	MessageID     string `gorm:"index" json:"message_id"` // RFC 5322 Message-ID for reply matching

	// Send bookkeeping
	Attempts  int        `gorm:"default:0" json:"attempts"`
	LastError string     `gorm:"type:text" json:"last_error,omitempty"`
	SentAt    *time.Time `json:"sent_at"`

	// Relations
	User        User        `json:"-"`
	Professor   Professor   `json:"professor,omitempty"`
	Application Application `json:"-"`
}

// CanTransitionTo reports whether the email may move to next.
func (e *Email) CanTransitionTo(next string) bool {
	for _, allowed := range emailTransitions[e.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the email to the next status with a guarded update so
// racing workers cannot both claim the same draft.
func (e *Email) TransitionTo(db *gorm.DB, next string) error {
	if !e.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, e.Status, next)
	}

	updates := map[string]interface{}{"status": next}
	if next == EmailStatusSent {
		now := time.Now()
		updates["sent_at"] = now
	}

	res := db.Model(&Email{}).
		Where("id = ? AND status = ?", e.ID, e.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if err := db.First(e, e.ID).Error; err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, e.Status, next)
	}
	e.Status = next
	return nil
}

// EmailBatch groups drafts for one-shot review and approval. The counters
// are denormalized and recomputed whenever membership or member status
// changes.
type EmailBatch struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name   string `gorm:"not null" json:"name"`
	Status string `gorm:"not null;default:'draft';index" json:"status"`

	// Denormalized counters
	TotalEmails    int `gorm:"default:0" json:"total_emails"`
	ApprovedEmails int `gorm:"default:0" json:"approved_emails"`
	SentEmails     int `gorm:"default:0" json:"sent_emails"`
	FailedEmails   int `gorm:"default:0" json:"failed_emails"`

	ApprovedAt  *time.Time `json:"approved_at"`
	SentAt      *time.Time `json:"sent_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Relations
	User   User    `json:"-"`
	Emails []Email `gorm:"foreignKey:BatchID" json:"emails,omitempty"`
}

// IsOpen reports whether the batch still accepts new drafts.
func (b *EmailBatch) IsOpen() bool {
	return b.Status == BatchStatusDraft
}

// RecomputeCounters reloads the denormalized counters from the member rows
// and persists them. Callers inside a transaction pass the tx handle.
func (b *EmailBatch) RecomputeCounters(db *gorm.DB) error {
	type counts struct {
		Total    int64
		Approved int64
		Sent     int64
		Failed   int64
	}
	var c counts
	err := db.Model(&Email{}).
		Select(
			"COUNT(*) AS total, "+
				"COUNT(CASE WHEN status = ? THEN 1 END) AS approved, "+
				"COUNT(CASE WHEN status = ? THEN 1 END) AS sent, "+
				"COUNT(CASE WHEN status = ? THEN 1 END) AS failed",
			EmailStatusApproved, EmailStatusSent, EmailStatusFailed).
		Where("batch_id = ?", b.ID).
		Scan(&c).Error
	if err != nil {
		return err
	}

	b.TotalEmails = int(c.Total)
	b.ApprovedEmails = int(c.Approved)
	b.SentEmails = int(c.Sent)
	b.FailedEmails = int(c.Failed)

	return db.Model(&EmailBatch{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
		"total_emails":    b.TotalEmails,
		"approved_emails": b.ApprovedEmails,
		"sent_emails":     b.SentEmails,
		"failed_emails":   b.FailedEmails,
	}).Error
}
