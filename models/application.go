package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Application statuses. An application tracks one user's outreach to one
// professor from first draft through final decision.
const (
	StatusDraft     = "draft"
	StatusApproved  = "approved"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusDelivered = "delivered"
	StatusOpened    = "opened"
	StatusReplied   = "replied"
	StatusRejected  = "rejected"
	StatusInterview = "interview"
	StatusOffer     = "offer"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
)

var (
	ErrIllegalTransition = errors.New("illegal application status transition")
	ErrDuplicateOutreach = errors.New("an active outreach to this professor already exists")
	ErrDraftInFlight     = errors.New("a draft generation is already in progress for this application")
)

// applicationTransitions is the full lifecycle graph. A status absent from
// the map is terminal.
var applicationTransitions = map[string][]string{
	StatusDraft:     {StatusApproved},
	StatusApproved:  {StatusSending, StatusDraft},
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusOpened, StatusReplied, StatusRejected},
	StatusDelivered: {StatusOpened, StatusReplied, StatusRejected},
	StatusOpened:    {StatusReplied, StatusRejected},
	StatusReplied:   {StatusInterview, StatusRejected},
	StatusInterview: {StatusOffer, StatusRejected},
	StatusOffer:     {StatusAccepted, StatusDeclined},
	StatusFailed:    {StatusDraft},
}

// Application tracks one outreach from draft to decision
type Application struct {
	gorm.Model
	UserID       uint  `gorm:"not null;index" json:"user_id"`
	ProfessorID  uint  `gorm:"not null;index" json:"professor_id"`
	UniversityID uint  `gorm:"not null;index" json:"university_id"`
	EmailID      *uint `gorm:"index" json:"email_id,omitempty"`

	Status string `gorm:"not null;default:'draft';index" json:"status"`

	// DraftInFlight is set while an AI draft is being generated for this
	// application so concurrent generation requests are rejected.
	DraftInFlight bool `gorm:"default:false" json:"draft_in_flight"`

	// Lifecycle timestamps, set by TransitionTo
	AppliedDate   *time.Time `json:"applied_date"`
	DeliveredDate *time.Time `json:"delivered_date"`
	OpenedDate    *time.Time `json:"opened_date"`
	RepliedDate   *time.Time `json:"replied_date"`
	InterviewDate *time.Time `json:"interview_date"`
	DecisionDate  *time.Time `json:"decision_date"`

	// Failure details from the last send attempt
	FailureReason string `gorm:"type:text" json:"failure_reason,omitempty"`
	SendAttempts  int    `gorm:"default:0" json:"send_attempts"`

	Notes string `gorm:"type:text" json:"notes"`

	// Relations
	User       User       `json:"-"`
	Professor  Professor  `json:"professor,omitempty"`
	University University `json:"university,omitempty"`
	Email      *Email     `json:"email,omitempty"`
}

// CanTransitionTo reports whether moving to next is legal from the current
// status without touching the database.
func (a *Application) CanTransitionTo(next string) bool {
	for _, allowed := range applicationTransitions[a.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the application can no longer change status.
func (a *Application) IsTerminal() bool {
	return len(applicationTransitions[a.Status]) == 0
}

// IsActive reports whether the application still counts as an open outreach
// for the duplicate-contact guard. Terminal statuses and failed drafts do
// not block a new outreach to the same professor.
func (a *Application) IsActive() bool {
	switch a.Status {
	case StatusRejected, StatusAccepted, StatusDeclined, StatusFailed:
		return false
	}
	return true
}

// TransitionTo atomically moves the application to the next status,
// stamping the matching lifecycle timestamp. The status check runs inside
// the update so two racing transitions cannot both succeed.
func (a *Application) TransitionTo(db *gorm.DB, next string) error {
	if !a.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, next)
	}

	now := time.Now()
	updates := map[string]interface{}{"status": next}
	switch next {
	case StatusSent:
		updates["applied_date"] = now
	case StatusDelivered:
		updates["delivered_date"] = now
	case StatusOpened:
		updates["opened_date"] = now
	case StatusReplied:
		updates["replied_date"] = now
	case StatusInterview:
		updates["interview_date"] = now
	case StatusRejected, StatusAccepted, StatusDeclined:
		updates["decision_date"] = now
	}

	res := db.Model(&Application{}).
		Where("id = ? AND status = ?", a.ID, a.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Someone moved it first; reload so the caller sees reality.
		if err := db.First(a, a.ID).Error; err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, next)
	}

	a.Status = next
	switch next {
	case StatusSent:
		a.AppliedDate = &now
	case StatusDelivered:
		a.DeliveredDate = &now
	case StatusOpened:
		a.OpenedDate = &now
	case StatusReplied:
		a.RepliedDate = &now
	case StatusInterview:
		a.InterviewDate = &now
	case StatusRejected, StatusAccepted, StatusDeclined:
		a.DecisionDate = &now
	}
	return nil
}

// GuardDuplicateOutreach returns ErrDuplicateOutreach when the user already
// has an active application to the professor.
func GuardDuplicateOutreach(db *gorm.DB, userID, professorID uint) error {
	var count int64
	err := db.Model(&Application{}).
		Where("user_id = ? AND professor_id = ? AND status NOT IN ?",
			userID, professorID,
			[]string{StatusRejected, StatusAccepted, StatusDeclined, StatusFailed}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateOutreach
	}
	return nil
}

// BeginDraftGeneration claims the single draft-generation slot for the
// application. Returns ErrDraftInFlight if another generation holds it.
func (a *Application) BeginDraftGeneration(db *gorm.DB) error {
	res := db.Model(&Application{}).
		Where("id = ? AND draft_in_flight = ?", a.ID, false).
		Update("draft_in_flight", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDraftInFlight
	}
	a.DraftInFlight = true
	return nil
}

// EndDraftGeneration releases the draft-generation slot.
func (a *Application) EndDraftGeneration(db *gorm.DB) error {
	if err := db.Model(&Application{}).
		Where("id = ?", a.ID).
		Update("draft_in_flight", false).Error; err != nil {
		return err
	}
	a.DraftInFlight = false
	return nil
}
