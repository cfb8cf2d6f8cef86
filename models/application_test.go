package models_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func seedApplication(t *testing.T, db *gorm.DB, status string) *models.Application {
	t.Helper()
	user := models.User{Email: "student@example.com", PasswordHash: "x", Name: "Student", IsActive: true}
	require.NoError(t, db.FirstOrCreate(&user, models.User{Email: user.Email}).Error)

	uni := models.University{Name: "Test University", Country: "USA"}
	require.NoError(t, db.FirstOrCreate(&uni, models.University{Name: uni.Name}).Error)

	prof := models.Professor{UniversityID: uni.ID, Name: "Dr. Smith"}
	require.NoError(t, db.Create(&prof).Error)

	app := models.Application{
		UserID:       user.ID,
		ProfessorID:  prof.ID,
		UniversityID: uni.ID,
		Status:       status,
	}
	require.NoError(t, db.Create(&app).Error)
	return &app
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{models.StatusDraft, models.StatusApproved, true},
		{models.StatusDraft, models.StatusSent, false},
		{models.StatusApproved, models.StatusSending, true},
		{models.StatusApproved, models.StatusDraft, true},
		{models.StatusSending, models.StatusSent, true},
		{models.StatusSending, models.StatusFailed, true},
		{models.StatusSent, models.StatusDelivered, true},
		{models.StatusSent, models.StatusOpened, true},
		{models.StatusSent, models.StatusReplied, true},
		{models.StatusDelivered, models.StatusReplied, true},
		{models.StatusOpened, models.StatusReplied, true},
		{models.StatusOpened, models.StatusDelivered, false},
		{models.StatusReplied, models.StatusInterview, true},
		{models.StatusReplied, models.StatusOffer, false},
		{models.StatusInterview, models.StatusOffer, true},
		{models.StatusOffer, models.StatusAccepted, true},
		{models.StatusOffer, models.StatusDeclined, true},
		{models.StatusFailed, models.StatusDraft, true},
		{models.StatusRejected, models.StatusDraft, false},
		{models.StatusAccepted, models.StatusDraft, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			app := models.Application{Status: tt.from}
			assert.Equal(t, tt.want, app.CanTransitionTo(tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, status := range []string{models.StatusRejected, models.StatusAccepted, models.StatusDeclined} {
		app := models.Application{Status: status}
		assert.True(t, app.IsTerminal(), status)
	}
	for _, status := range []string{models.StatusDraft, models.StatusFailed, models.StatusOffer} {
		app := models.Application{Status: status}
		assert.False(t, app.IsTerminal(), status)
	}
}

func TestTransitionToStampsTimestamps(t *testing.T) {
	db := setupTestDB(t)
	app := seedApplication(t, db, models.StatusDraft)

	require.NoError(t, app.TransitionTo(db, models.StatusApproved))
	require.NoError(t, app.TransitionTo(db, models.StatusSending))
	require.NoError(t, app.TransitionTo(db, models.StatusSent))
	require.NotNil(t, app.AppliedDate)

	require.NoError(t, app.TransitionTo(db, models.StatusReplied))
	require.NotNil(t, app.RepliedDate)

	require.NoError(t, app.TransitionTo(db, models.StatusInterview))
	require.NoError(t, app.TransitionTo(db, models.StatusOffer))
	require.NoError(t, app.TransitionTo(db, models.StatusAccepted))
	require.NotNil(t, app.DecisionDate)

	var reloaded models.Application
	require.NoError(t, db.First(&reloaded, app.ID).Error)
	assert.Equal(t, models.StatusAccepted, reloaded.Status)
	assert.NotNil(t, reloaded.AppliedDate)
	assert.NotNil(t, reloaded.RepliedDate)
	assert.NotNil(t, reloaded.InterviewDate)
	assert.NotNil(t, reloaded.DecisionDate)
}

func TestTransitionToRejectsIllegalMove(t *testing.T) {
	db := setupTestDB(t)
	app := seedApplication(t, db, models.StatusDraft)

	err := app.TransitionTo(db, models.StatusSent)
	require.ErrorIs(t, err, models.ErrIllegalTransition)
	assert.Equal(t, models.StatusDraft, app.Status)
}

func TestTransitionToLosesRace(t *testing.T) {
	db := setupTestDB(t)
	app := seedApplication(t, db, models.StatusDraft)

	// Two handlers hold the same draft; only one approval may win.
	stale := *app
	require.NoError(t, app.TransitionTo(db, models.StatusApproved))

	err := stale.TransitionTo(db, models.StatusApproved)
	require.ErrorIs(t, err, models.ErrIllegalTransition)
	// The loser sees the fresh status after the reload
	assert.Equal(t, models.StatusApproved, stale.Status)
}

func TestGuardDuplicateOutreach(t *testing.T) {
	db := setupTestDB(t)
	app := seedApplication(t, db, models.StatusDraft)

	err := models.GuardDuplicateOutreach(db, app.UserID, app.ProfessorID)
	require.ErrorIs(t, err, models.ErrDuplicateOutreach)

	// A different professor is not blocked
	require.NoError(t, models.GuardDuplicateOutreach(db, app.UserID, app.ProfessorID+100))

	// Terminal outreach stops blocking
	require.NoError(t, db.Model(&models.Application{}).Where("id = ?", app.ID).
		Update("status", models.StatusRejected).Error)
	require.NoError(t, models.GuardDuplicateOutreach(db, app.UserID, app.ProfessorID))
}

func TestDraftGenerationSlot(t *testing.T) {
	db := setupTestDB(t)
	app := seedApplication(t, db, models.StatusDraft)

	require.NoError(t, app.BeginDraftGeneration(db))

	other := models.Application{Model: app.Model}
	err := other.BeginDraftGeneration(db)
	require.ErrorIs(t, err, models.ErrDraftInFlight)

	require.NoError(t, app.EndDraftGeneration(db))
	require.NoError(t, other.BeginDraftGeneration(db))
}

func TestEmailTransitionStampsSentAt(t *testing.T) {
	db := setupTestDB(t)
	app := seedApplication(t, db, models.StatusDraft)

	email := models.Email{
		UserID:        app.UserID,
		ProfessorID:   app.ProfessorID,
		ApplicationID: app.ID,
		Subject:       "Hello",
		Body:          "Body",
		Status:        models.EmailStatusDraft,
	}
	require.NoError(t, db.Create(&email).Error)

	require.NoError(t, email.TransitionTo(db, models.EmailStatusApproved))
	require.NoError(t, email.TransitionTo(db, models.EmailStatusSending))
	require.NoError(t, email.TransitionTo(db, models.EmailStatusSent))

	var reloaded models.Email
	require.NoError(t, db.First(&reloaded, email.ID).Error)
	assert.Equal(t, models.EmailStatusSent, reloaded.Status)
	assert.NotNil(t, reloaded.SentAt)

	err := email.TransitionTo(db, models.EmailStatusDraft)
	require.ErrorIs(t, err, models.ErrIllegalTransition)
}

func TestBatchRecomputeCounters(t *testing.T) {
	db := setupTestDB(t)
	app := seedApplication(t, db, models.StatusDraft)

	batch := models.EmailBatch{UserID: app.UserID, Name: "b", Status: models.BatchStatusDraft}
	require.NoError(t, db.Create(&batch).Error)

	for _, status := range []string{
		models.EmailStatusApproved,
		models.EmailStatusSent,
		models.EmailStatusSent,
		models.EmailStatusFailed,
	} {
		email := models.Email{
			UserID:        app.UserID,
			ProfessorID:   app.ProfessorID,
			ApplicationID: app.ID,
			BatchID:       &batch.ID,
			Subject:       "s",
			Body:          "b",
			Status:        status,
		}
		require.NoError(t, db.Create(&email).Error)
	}

	require.NoError(t, batch.RecomputeCounters(db))
	assert.Equal(t, 4, batch.TotalEmails)
	assert.Equal(t, 1, batch.ApprovedEmails)
	assert.Equal(t, 2, batch.SentEmails)
	assert.Equal(t, 1, batch.FailedEmails)
}
