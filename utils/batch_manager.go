package utils

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gradreach/models"
)

// SkippedEmail records a batch member that approval passed over
type SkippedEmail struct {
	EmailID     uint   `json:"email_id"`
	ProfessorID uint   `json:"professor_id"`
	Reason      string `json:"reason"`
}

// ApprovalResult summarizes what a batch approval did
type ApprovalResult struct {
	BatchID  uint           `json:"batch_id"`
	Approved int            `json:"approved"`
	Skipped  []SkippedEmail `json:"skipped,omitempty"`
}

// CreateBatch opens a new draft batch for the user
func CreateBatch(db *gorm.DB, userID uint, name string) (*models.EmailBatch, error) {
	if name == "" {
		name = fmt.Sprintf("Outreach batch %s", time.Now().Format("2006-01-02 15:04"))
	}
	batch := &models.EmailBatch{
		UserID: userID,
		Name:   name,
		Status: models.BatchStatusDraft,
	}
	if err := db.Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

// AddEmailToBatch attaches a draft email to an open batch and refreshes
// the batch counters.
func AddEmailToBatch(db *gorm.DB, batch *models.EmailBatch, email *models.Email) error {
	if !batch.IsOpen() {
		return models.ErrBatchClosed
	}
	if email.Status != models.EmailStatusDraft {
		return models.ErrMemberNotDraft
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Email{}).Where("id = ?", email.ID).
			Update("batch_id", batch.ID).Error; err != nil {
			return err
		}
		email.BatchID = &batch.ID
		return batch.RecomputeCounters(tx)
	})
}

// RemoveEmailFromBatch detaches a draft from an open batch
func RemoveEmailFromBatch(db *gorm.DB, batch *models.EmailBatch, email *models.Email) error {
	if !batch.IsOpen() {
		return models.ErrBatchClosed
	}
	if email.BatchID == nil || *email.BatchID != batch.ID {
		return fmt.Errorf("email %d does not belong to batch %d", email.ID, batch.ID)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Email{}).Where("id = ?", email.ID).
			Update("batch_id", nil).Error; err != nil {
			return err
		}
		email.BatchID = nil
		return batch.RecomputeCounters(tx)
	})
}

// ApproveBatch flips every draft member to approved in one transaction and
// closes the batch. Members whose professor already has an active outreach
// elsewhere are skipped and reported rather than failing the whole batch; a
// member in any non-draft status aborts the approval entirely.
func ApproveBatch(db *gorm.DB, batch *models.EmailBatch) (*ApprovalResult, error) {
	if batch.Status != models.BatchStatusDraft {
		return nil, models.ErrBatchClosed
	}

	result := &ApprovalResult{BatchID: batch.ID}

	err := db.Transaction(func(tx *gorm.DB) error {
		var emails []models.Email
		if err := tx.Where("batch_id = ?", batch.ID).Order("id ASC").Find(&emails).Error; err != nil {
			return err
		}
		if len(emails) == 0 {
			return models.ErrEmptyBatch
		}

		for i := range emails {
			email := &emails[i]
			if email.Status != models.EmailStatusDraft {
				return fmt.Errorf("%w: email %d is %s", models.ErrMemberNotDraft, email.ID, email.Status)
			}

			var app models.Application
			if err := tx.First(&app, email.ApplicationID).Error; err != nil {
				return err
			}

			// Another approved or in-flight outreach to the same
			// professor wins; this member stays a draft.
			if err := guardOtherOutreach(tx, app.UserID, app.ProfessorID, app.ID); err != nil {
				if errors.Is(err, models.ErrDuplicateOutreach) {
					result.Skipped = append(result.Skipped, SkippedEmail{
						EmailID:     email.ID,
						ProfessorID: app.ProfessorID,
						Reason:      "duplicate outreach to professor",
					})
					continue
				}
				return err
			}

			if err := email.TransitionTo(tx, models.EmailStatusApproved); err != nil {
				return err
			}
			if app.Status == models.StatusDraft {
				if err := app.TransitionTo(tx, models.StatusApproved); err != nil {
					return err
				}
			}
			result.Approved++
		}

		if result.Approved == 0 {
			return models.ErrEmptyBatch
		}

		now := time.Now()
		if err := tx.Model(&models.EmailBatch{}).Where("id = ?", batch.ID).Updates(map[string]interface{}{
			"status":      models.BatchStatusApproved,
			"approved_at": now,
		}).Error; err != nil {
			return err
		}
		batch.Status = models.BatchStatusApproved
		batch.ApprovedAt = &now

		return batch.RecomputeCounters(tx)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelBatch stops a batch that has not completed. Already-sent members
// keep their status; pending members drop back to draft.
func CancelBatch(db *gorm.DB, batch *models.EmailBatch) error {
	switch batch.Status {
	case models.BatchStatusCompleted, models.BatchStatusCancelled:
		return models.ErrInvalidBatchState
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Email{}).
			Where("batch_id = ? AND status = ?", batch.ID, models.EmailStatusApproved).
			Update("status", models.EmailStatusDraft).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.EmailBatch{}).Where("id = ?", batch.ID).
			Update("status", models.BatchStatusCancelled).Error; err != nil {
			return err
		}
		batch.Status = models.BatchStatusCancelled
		return batch.RecomputeCounters(tx)
	})
}

// guardOtherOutreach is the duplicate check scoped to exclude the
// application being approved itself.
func guardOtherOutreach(db *gorm.DB, userID, professorID, selfAppID uint) error {
	var count int64
	err := db.Model(&models.Application{}).
		Where("user_id = ? AND professor_id = ? AND id != ? AND status NOT IN ?",
			userID, professorID, selfAppID,
			[]string{models.StatusDraft, models.StatusRejected, models.StatusAccepted, models.StatusDeclined, models.StatusFailed}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return models.ErrDuplicateOutreach
	}
	return nil
}
