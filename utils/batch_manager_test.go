package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gradreach/models"
)

type batchFixture struct {
	db    *gorm.DB
	user  models.User
	uni   models.University
	batch *models.EmailBatch
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	db := setupTestDB(t)

	f := &batchFixture{db: db}
	f.user = models.User{Email: "student@example.com", PasswordHash: "x", Name: "Student"}
	require.NoError(t, db.Create(&f.user).Error)
	f.uni = models.University{Name: "Test University", Country: "USA"}
	require.NoError(t, db.Create(&f.uni).Error)

	batch, err := CreateBatch(db, f.user.ID, "")
	require.NoError(t, err)
	f.batch = batch
	return f
}

// addDraft creates a professor, a draft application, and a draft email
// already attached to the fixture batch.
func (f *batchFixture) addDraft(t *testing.T, n int) (*models.Professor, *models.Application, *models.Email) {
	t.Helper()
	prof := models.Professor{UniversityID: f.uni.ID, Name: fmt.Sprintf("Dr. %d", n)}
	require.NoError(t, f.db.Create(&prof).Error)

	app := models.Application{
		UserID:       f.user.ID,
		ProfessorID:  prof.ID,
		UniversityID: f.uni.ID,
		Status:       models.StatusDraft,
	}
	require.NoError(t, f.db.Create(&app).Error)

	email := models.Email{
		UserID:        f.user.ID,
		ProfessorID:   prof.ID,
		ApplicationID: app.ID,
		Subject:       "Hello",
		Body:          "Body",
		Status:        models.EmailStatusDraft,
	}
	require.NoError(t, f.db.Create(&email).Error)
	require.NoError(t, AddEmailToBatch(f.db, f.batch, &email))
	return &prof, &app, &email
}

func TestCreateBatchDefaultName(t *testing.T) {
	f := newBatchFixture(t)
	assert.Contains(t, f.batch.Name, "Outreach batch")
	assert.Equal(t, models.BatchStatusDraft, f.batch.Status)
}

func TestAddEmailToBatch(t *testing.T) {
	f := newBatchFixture(t)
	_, _, email := f.addDraft(t, 1)

	require.NotNil(t, email.BatchID)
	assert.Equal(t, f.batch.ID, *email.BatchID)
	assert.Equal(t, 1, f.batch.TotalEmails)

	// Closed batches reject new members
	require.NoError(t, f.db.Model(&models.EmailBatch{}).Where("id = ?", f.batch.ID).
		Update("status", models.BatchStatusApproved).Error)
	f.batch.Status = models.BatchStatusApproved

	other := models.Email{
		UserID:        f.user.ID,
		ProfessorID:   email.ProfessorID,
		ApplicationID: email.ApplicationID,
		Subject:       "s",
		Body:          "b",
		Status:        models.EmailStatusDraft,
	}
	require.NoError(t, f.db.Create(&other).Error)
	err := AddEmailToBatch(f.db, f.batch, &other)
	require.ErrorIs(t, err, models.ErrBatchClosed)
}

func TestRemoveEmailFromBatch(t *testing.T) {
	f := newBatchFixture(t)
	_, _, email := f.addDraft(t, 1)

	require.NoError(t, RemoveEmailFromBatch(f.db, f.batch, email))
	assert.Nil(t, email.BatchID)
	assert.Equal(t, 0, f.batch.TotalEmails)
}

func TestApproveBatch(t *testing.T) {
	f := newBatchFixture(t)
	_, app1, email1 := f.addDraft(t, 1)
	_, app2, email2 := f.addDraft(t, 2)

	result, err := ApproveBatch(f.db, f.batch)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Approved)
	assert.Empty(t, result.Skipped)

	for _, id := range []uint{email1.ID, email2.ID} {
		var e models.Email
		require.NoError(t, f.db.First(&e, id).Error)
		assert.Equal(t, models.EmailStatusApproved, e.Status)
	}
	for _, id := range []uint{app1.ID, app2.ID} {
		var a models.Application
		require.NoError(t, f.db.First(&a, id).Error)
		assert.Equal(t, models.StatusApproved, a.Status)
	}

	var batch models.EmailBatch
	require.NoError(t, f.db.First(&batch, f.batch.ID).Error)
	assert.Equal(t, models.BatchStatusApproved, batch.Status)
	assert.NotNil(t, batch.ApprovedAt)
	assert.Equal(t, 2, batch.ApprovedEmails)
}

func TestApproveBatchSkipsDuplicateOutreach(t *testing.T) {
	f := newBatchFixture(t)
	prof, _, email := f.addDraft(t, 1)
	f.addDraft(t, 2)

	// The professor already has an outreach in flight elsewhere
	blocking := models.Application{
		UserID:       f.user.ID,
		ProfessorID:  prof.ID,
		UniversityID: f.uni.ID,
		Status:       models.StatusSent,
	}
	require.NoError(t, f.db.Create(&blocking).Error)

	result, err := ApproveBatch(f.db, f.batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Approved)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, email.ID, result.Skipped[0].EmailID)
	assert.Equal(t, prof.ID, result.Skipped[0].ProfessorID)

	// The skipped member stays a draft
	var e models.Email
	require.NoError(t, f.db.First(&e, email.ID).Error)
	assert.Equal(t, models.EmailStatusDraft, e.Status)
}

func TestApproveBatchAllSkippedIsEmpty(t *testing.T) {
	f := newBatchFixture(t)
	prof, _, _ := f.addDraft(t, 1)

	blocking := models.Application{
		UserID:       f.user.ID,
		ProfessorID:  prof.ID,
		UniversityID: f.uni.ID,
		Status:       models.StatusSent,
	}
	require.NoError(t, f.db.Create(&blocking).Error)

	_, err := ApproveBatch(f.db, f.batch)
	require.ErrorIs(t, err, models.ErrEmptyBatch)
}

func TestApproveBatchEmpty(t *testing.T) {
	f := newBatchFixture(t)
	_, err := ApproveBatch(f.db, f.batch)
	require.ErrorIs(t, err, models.ErrEmptyBatch)
}

func TestApproveBatchAbortsOnNonDraftMember(t *testing.T) {
	f := newBatchFixture(t)
	_, _, email1 := f.addDraft(t, 1)
	_, app2, _ := f.addDraft(t, 2)

	require.NoError(t, f.db.Model(&models.Email{}).Where("id = ?", email1.ID).
		Update("status", models.EmailStatusSent).Error)

	_, err := ApproveBatch(f.db, f.batch)
	require.ErrorIs(t, err, models.ErrMemberNotDraft)

	// Nothing was approved
	var a models.Application
	require.NoError(t, f.db.First(&a, app2.ID).Error)
	assert.Equal(t, models.StatusDraft, a.Status)
}

func TestApproveBatchRejectsClosedBatch(t *testing.T) {
	f := newBatchFixture(t)
	f.addDraft(t, 1)

	_, err := ApproveBatch(f.db, f.batch)
	require.NoError(t, err)

	_, err = ApproveBatch(f.db, f.batch)
	require.ErrorIs(t, err, models.ErrBatchClosed)
}

func TestCancelBatch(t *testing.T) {
	f := newBatchFixture(t)
	_, _, email := f.addDraft(t, 1)

	_, err := ApproveBatch(f.db, f.batch)
	require.NoError(t, err)

	require.NoError(t, CancelBatch(f.db, f.batch))
	assert.Equal(t, models.BatchStatusCancelled, f.batch.Status)

	// Pending members drop back to draft
	var e models.Email
	require.NoError(t, f.db.First(&e, email.ID).Error)
	assert.Equal(t, models.EmailStatusDraft, e.Status)

	// Cancelling twice is rejected
	err = CancelBatch(f.db, f.batch)
	require.ErrorIs(t, err, models.ErrInvalidBatchState)
}
