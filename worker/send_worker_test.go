package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
)

// fakeDeliverer replays a queue of outcomes per recipient address. An
// empty queue means every delivery succeeds.
type fakeDeliverer struct {
	mu        sync.Mutex
	outcomes  map[string][]error
	delivered []string
}

func (f *fakeDeliverer) Deliver(ctx context.Context, email *models.Email, toAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if queue := f.outcomes[toAddress]; len(queue) > 0 {
		err := queue[0]
		f.outcomes[toAddress] = queue[1:]
		if err != nil {
			return err
		}
	}
	f.delivered = append(f.delivered, toAddress)
	return nil
}

// cancellingDeliverer cancels the batch context while delivering its first
// email, then delivers normally.
type cancellingDeliverer struct {
	cancel    context.CancelFunc
	mu        sync.Mutex
	delivered []string
}

func (d *cancellingDeliverer) Deliver(ctx context.Context, email *models.Email, toAddress string) error {
	d.mu.Lock()
	first := len(d.delivered) == 0
	d.delivered = append(d.delivered, toAddress)
	d.mu.Unlock()

	if first {
		d.cancel()
		// Hold the only worker so the dispatcher sees the cancellation
		// before a slot frees up
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func setSendConfig(t *testing.T, cfg config.SendConfig) {
	t.Helper()
	old := config.AppConfig.Send
	config.AppConfig.Send = cfg
	t.Cleanup(func() { config.AppConfig.Send = old })
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type sendFixture struct {
	db    *gorm.DB
	user  models.User
	uni   models.University
	batch models.EmailBatch
}

func newSendFixture(t *testing.T) *sendFixture {
	t.Helper()
	f := &sendFixture{db: setupTestDB(t)}

	f.user = models.User{Email: "student@example.com", PasswordHash: "x", Name: "Student"}
	require.NoError(t, f.db.Create(&f.user).Error)
	f.uni = models.University{Name: "Test University", Country: "USA"}
	require.NoError(t, f.db.Create(&f.uni).Error)
	f.batch = models.EmailBatch{UserID: f.user.ID, Name: "b", Status: models.BatchStatusApproved}
	require.NoError(t, f.db.Create(&f.batch).Error)
	return f
}

// addApproved seeds a professor with an approved application and an
// approved batch member addressed to them.
func (f *sendFixture) addApproved(t *testing.T, n int) (*models.Professor, *models.Application, *models.Email) {
	t.Helper()
	prof := models.Professor{
		UniversityID: f.uni.ID,
		Name:         fmt.Sprintf("Dr. %d", n),
		Email:        fmt.Sprintf("prof%d@uni.edu", n),
	}
	require.NoError(t, f.db.Create(&prof).Error)

	app := models.Application{
		UserID:       f.user.ID,
		ProfessorID:  prof.ID,
		UniversityID: f.uni.ID,
		Status:       models.StatusApproved,
	}
	require.NoError(t, f.db.Create(&app).Error)

	email := models.Email{
		UserID:        f.user.ID,
		ProfessorID:   prof.ID,
		ApplicationID: app.ID,
		BatchID:       &f.batch.ID,
		Subject:       "Hello",
		Body:          "Body",
		Status:        models.EmailStatusApproved,
		MessageID:     fmt.Sprintf("<%d@gradreach.app>", n),
	}
	require.NoError(t, f.db.Create(&email).Error)
	return &prof, &app, &email
}

func TestSendBatchDeliversApproved(t *testing.T) {
	setSendConfig(t, config.SendConfig{
		Concurrency:     2,
		MaxRetries:      2,
		BackoffBase:     time.Millisecond,
		BackoffCap:      5 * time.Millisecond,
		DeliveryTimeout: time.Second,
	})

	f := newSendFixture(t)
	prof1, app1, email1 := f.addApproved(t, 1)
	_, _, _ = f.addApproved(t, 2)

	deliverer := &fakeDeliverer{outcomes: map[string][]error{}}
	sw := NewSendWorker(f.db, quietLogger(), deliverer, nil)

	report, err := sw.SendBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 0, report.Failed)

	var e models.Email
	require.NoError(t, f.db.First(&e, email1.ID).Error)
	assert.Equal(t, models.EmailStatusSent, e.Status)
	assert.NotNil(t, e.SentAt)
	assert.Equal(t, 1, e.Attempts)

	var a models.Application
	require.NoError(t, f.db.First(&a, app1.ID).Error)
	assert.Equal(t, models.StatusSent, a.Status)
	assert.NotNil(t, a.AppliedDate)

	var p models.Professor
	require.NoError(t, f.db.First(&p, prof1.ID).Error)
	assert.Equal(t, 1, p.ContactCount)
	assert.NotNil(t, p.LastContacted)

	var batch models.EmailBatch
	require.NoError(t, f.db.First(&batch, f.batch.ID).Error)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
	assert.Equal(t, 2, batch.SentEmails)
	assert.NotNil(t, batch.CompletedAt)
}

func TestSendBatchPermanentFailureDoesNotRetry(t *testing.T) {
	setSendConfig(t, config.SendConfig{
		Concurrency:     1,
		MaxRetries:      3,
		BackoffBase:     time.Millisecond,
		BackoffCap:      5 * time.Millisecond,
		DeliveryTimeout: time.Second,
	})

	f := newSendFixture(t)
	prof, app, email := f.addApproved(t, 1)

	rejection := &utils.DeliveryError{Msg: "550 mailbox unavailable", Retryable: false}
	deliverer := &fakeDeliverer{outcomes: map[string][]error{
		prof.Email: {rejection},
	}}
	sw := NewSendWorker(f.db, quietLogger(), deliverer, nil)

	report, err := sw.SendBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Failures[0].Attempts)
	assert.Contains(t, report.Failures[0].Error, "550")

	var e models.Email
	require.NoError(t, f.db.First(&e, email.ID).Error)
	assert.Equal(t, models.EmailStatusFailed, e.Status)
	assert.Contains(t, e.LastError, "550")

	var a models.Application
	require.NoError(t, f.db.First(&a, app.ID).Error)
	assert.Equal(t, models.StatusFailed, a.Status)
	assert.Contains(t, a.FailureReason, "550")

	var batch models.EmailBatch
	require.NoError(t, f.db.First(&batch, f.batch.ID).Error)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
	assert.Equal(t, 1, batch.FailedEmails)
}

func TestSendBatchRetriesTransientFailures(t *testing.T) {
	setSendConfig(t, config.SendConfig{
		Concurrency:     1,
		MaxRetries:      3,
		BackoffBase:     time.Millisecond,
		BackoffCap:      5 * time.Millisecond,
		DeliveryTimeout: time.Second,
	})

	f := newSendFixture(t)
	prof, _, email := f.addApproved(t, 1)

	greylisted := &utils.DeliveryError{Msg: "451 try again later", Retryable: true}
	deliverer := &fakeDeliverer{outcomes: map[string][]error{
		prof.Email: {greylisted, greylisted, nil},
	}}
	sw := NewSendWorker(f.db, quietLogger(), deliverer, nil)

	report, err := sw.SendBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	var e models.Email
	require.NoError(t, f.db.First(&e, email.ID).Error)
	assert.Equal(t, models.EmailStatusSent, e.Status)
	assert.Equal(t, 3, e.Attempts)
}

func TestSendBatchQuotaDefersRemainder(t *testing.T) {
	setSendConfig(t, config.SendConfig{
		Concurrency:     1,
		MaxRetries:      0,
		BackoffBase:     time.Millisecond,
		BackoffCap:      5 * time.Millisecond,
		DeliveryTimeout: time.Second,
		HourlyLimit:     1,
	})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	f := newSendFixture(t)
	f.addApproved(t, 1)
	_, _, email2 := f.addApproved(t, 2)

	deliverer := &fakeDeliverer{outcomes: map[string][]error{}}
	sw := NewSendWorker(f.db, quietLogger(), deliverer, rdb)

	report, err := sw.SendBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.QuotaDeferred)

	// Deferred emails stay approved and the batch keeps sending
	var e models.Email
	require.NoError(t, f.db.First(&e, email2.ID).Error)
	assert.Equal(t, models.EmailStatusApproved, e.Status)

	var batch models.EmailBatch
	require.NoError(t, f.db.First(&batch, f.batch.ID).Error)
	assert.Equal(t, models.BatchStatusSending, batch.Status)
}

func TestSendBatchDispatchesInInsertionOrder(t *testing.T) {
	setSendConfig(t, config.SendConfig{Concurrency: 1, DeliveryTimeout: time.Second})

	f := newSendFixture(t)
	prof1, _, _ := f.addApproved(t, 1)
	prof2, _, _ := f.addApproved(t, 2)
	prof3, _, _ := f.addApproved(t, 3)

	deliverer := &fakeDeliverer{outcomes: map[string][]error{}}
	sw := NewSendWorker(f.db, quietLogger(), deliverer, nil)

	_, err := sw.SendBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{prof1.Email, prof2.Email, prof3.Email}, deliverer.delivered)
}

func TestSendBatchCancelStopsLaterDispatches(t *testing.T) {
	setSendConfig(t, config.SendConfig{Concurrency: 1, DeliveryTimeout: time.Second})

	f := newSendFixture(t)
	prof1, _, email1 := f.addApproved(t, 1)
	_, _, email2 := f.addApproved(t, 2)
	_, _, email3 := f.addApproved(t, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deliverer := &cancellingDeliverer{cancel: cancel}
	sw := NewSendWorker(f.db, quietLogger(), deliverer, nil)

	report, err := sw.SendBatch(ctx, f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Cancelled)
	assert.Equal(t, []string{prof1.Email}, deliverer.delivered)

	// The in-flight delivery keeps its outcome
	var e models.Email
	require.NoError(t, f.db.First(&e, email1.ID).Error)
	assert.Equal(t, models.EmailStatusSent, e.Status)

	// Undispatched members stay approved for a later run
	for _, id := range []uint{email2.ID, email3.ID} {
		var pending models.Email
		require.NoError(t, f.db.First(&pending, id).Error)
		assert.Equal(t, models.EmailStatusApproved, pending.Status)
	}

	var batch models.EmailBatch
	require.NoError(t, f.db.First(&batch, f.batch.ID).Error)
	assert.Equal(t, models.BatchStatusSending, batch.Status)
}

func TestSendBatchRejectsUnapprovedBatch(t *testing.T) {
	setSendConfig(t, config.SendConfig{Concurrency: 1, DeliveryTimeout: time.Second})

	f := newSendFixture(t)
	require.NoError(t, f.db.Model(&models.EmailBatch{}).Where("id = ?", f.batch.ID).
		Update("status", models.BatchStatusDraft).Error)

	sw := NewSendWorker(f.db, quietLogger(), &fakeDeliverer{}, nil)
	_, err := sw.SendBatch(context.Background(), f.batch.ID)
	require.ErrorIs(t, err, models.ErrInvalidBatchState)
}

func TestSendBatchReportsProgress(t *testing.T) {
	setSendConfig(t, config.SendConfig{Concurrency: 1, DeliveryTimeout: time.Second})

	f := newSendFixture(t)
	f.addApproved(t, 1)
	f.addApproved(t, 2)

	var mu sync.Mutex
	var updates []int
	sw := NewSendWorker(f.db, quietLogger(), &fakeDeliverer{}, nil)
	sw.OnProgress = func(batchID uint, sent, failed, total int) {
		mu.Lock()
		updates = append(updates, sent+failed)
		mu.Unlock()
	}

	_, err := sw.SendBatch(context.Background(), f.batch.ID)
	require.NoError(t, err)

	require.Len(t, updates, 2)
	assert.Equal(t, []int{1, 2}, updates)
}
