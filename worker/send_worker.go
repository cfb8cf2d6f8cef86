package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
	"gradreach/utils"
)

// ErrQuotaExceeded is returned when the hourly send quota is exhausted
var ErrQuotaExceeded = errors.New("hourly send quota exceeded")

// SendFailure records one email that could not be delivered
type SendFailure struct {
	EmailID     uint   `json:"email_id"`
	ProfessorID uint   `json:"professor_id"`
	Error       string `json:"error"`
	Attempts    int    `json:"attempts"`
}

// BatchSendReport summarizes a batch send run
type BatchSendReport struct {
	BatchID       uint          `json:"batch_id"`
	Total         int           `json:"total"`
	Sent          int           `json:"sent"`
	Failed        int           `json:"failed"`
	QuotaDeferred int           `json:"quota_deferred"`
	Cancelled     int           `json:"cancelled"`
	Duration      time.Duration `json:"duration"`
	Failures      []SendFailure `json:"failures,omitempty"`
}

// SendWorker dispatches approved batches through a bounded worker pool
type SendWorker struct {
	db        *gorm.DB
	logger    *log.Logger
	deliverer utils.Deliverer
	rdb       *redis.Client

	// OnProgress, when set, is called after every terminal email outcome
	// so live listeners (websockets) can stream batch progress.
	OnProgress func(batchID uint, sent, failed, total int)
}

func NewSendWorker(db *gorm.DB, logger *log.Logger, deliverer utils.Deliverer, rdb *redis.Client) *SendWorker {
	return &SendWorker{
		db:        db,
		logger:    logger,
		deliverer: deliverer,
		rdb:       rdb,
	}
}

// Start resumes batches stranded in the sending state, e.g. after a crash
// mid-dispatch. Triggered sends go through SendBatch directly.
func (sw *SendWorker) Start(ctx context.Context) {
	sw.logger.Println("Starting send worker...")
	ticker := time.NewTicker(1 * time.Minute)

	for {
		select {
		case <-ticker.C:
			sw.resumeStrandedBatches(ctx)
		case <-ctx.Done():
			sw.logger.Println("Stopping send worker...")
			ticker.Stop()
			return
		}
	}
}

func (sw *SendWorker) resumeStrandedBatches(ctx context.Context) {
	var batches []models.EmailBatch
	cutoff := time.Now().Add(-5 * time.Minute)
	if err := sw.db.Where("status = ? AND updated_at < ?", models.BatchStatusSending, cutoff).
		Find(&batches).Error; err != nil {
		sw.logger.Printf("Failed to scan for stranded batches: %v", err)
		return
	}

	for i := range batches {
		sw.logger.Printf("Resuming stranded batch %d", batches[i].ID)
		if _, err := sw.SendBatch(ctx, batches[i].ID); err != nil {
			sw.logger.Printf("Failed to resume batch %d: %v", batches[i].ID, err)
		}
	}
}

// SendBatch dispatches every approved email in the batch through the worker
// pool. Cancellation is cooperative: in-flight deliveries finish (or time
// out), no new ones start. Emails blocked by the hourly quota stay approved
// for a later run.
func (sw *SendWorker) SendBatch(ctx context.Context, batchID uint) (*BatchSendReport, error) {
	start := time.Now()

	var batch models.EmailBatch
	if err := sw.db.First(&batch, batchID).Error; err != nil {
		return nil, err
	}

	switch batch.Status {
	case models.BatchStatusApproved:
		now := time.Now()
		if err := sw.db.Model(&models.EmailBatch{}).Where("id = ?", batch.ID).Updates(map[string]interface{}{
			"status":  models.BatchStatusSending,
			"sent_at": now,
		}).Error; err != nil {
			return nil, err
		}
		batch.Status = models.BatchStatusSending
	case models.BatchStatusSending:
		// Resuming a partially dispatched batch
	default:
		return nil, models.ErrInvalidBatchState
	}

	// Members are dispatched in insertion order
	var emails []models.Email
	if err := sw.db.Where("batch_id = ? AND status = ?", batch.ID, models.EmailStatusApproved).
		Order("id ASC").
		Find(&emails).Error; err != nil {
		return nil, err
	}

	report := &BatchSendReport{BatchID: batch.ID, Total: len(emails)}
	if len(emails) == 0 {
		sw.finishBatch(&batch)
		report.Duration = time.Since(start)
		return report, nil
	}

	concurrency := config.AppConfig.Send.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	jobs := make(chan *models.Email)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for email := range jobs {
				outcome, attempts, err := sw.sendOne(ctx, email)
				mu.Lock()
				switch outcome {
				case models.EmailStatusSent:
					report.Sent++
				case models.EmailStatusFailed:
					report.Failed++
					report.Failures = append(report.Failures, SendFailure{
						EmailID:     email.ID,
						ProfessorID: email.ProfessorID,
						Error:       errString(err),
						Attempts:    attempts,
					})
				}
				sent, failed := report.Sent, report.Failed
				mu.Unlock()

				if sw.OnProgress != nil {
					sw.OnProgress(batch.ID, sent, failed, report.Total)
				}
			}
		}()
	}

dispatch:
	for i := range emails {
		// Cancellation is checked between dispatches, never mid-delivery
		select {
		case <-ctx.Done():
			report.Cancelled = len(emails) - i
			break dispatch
		default:
		}

		if err := sw.reserveQuota(ctx); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				report.QuotaDeferred = len(emails) - i
				sw.logger.Printf("Hourly quota exhausted, deferring %d emails in batch %d", report.QuotaDeferred, batch.ID)
				break dispatch
			}
			sw.logger.Printf("Quota check failed, sending anyway: %v", err)
		}

		select {
		case jobs <- &emails[i]:
		case <-ctx.Done():
			// Cancelled while waiting for a free worker
			report.Cancelled = len(emails) - i
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if err := batch.RecomputeCounters(sw.db); err != nil {
		sw.logger.Printf("Failed to recompute counters for batch %d: %v", batch.ID, err)
	}

	// The batch completes only when nothing is left to dispatch
	if report.QuotaDeferred == 0 && report.Cancelled == 0 {
		sw.finishBatch(&batch)
	}

	report.Duration = time.Since(start)
	sw.logger.Printf("✅ Batch %d dispatched: %d sent, %d failed, %d deferred, %d cancelled",
		batch.ID, report.Sent, report.Failed, report.QuotaDeferred, report.Cancelled)
	return report, nil
}

// sendOne drives a single email through sending with bounded retries and
// exponential backoff. Returns the terminal email status.
func (sw *SendWorker) sendOne(ctx context.Context, email *models.Email) (string, int, error) {
	var app models.Application
	if err := sw.db.First(&app, email.ApplicationID).Error; err != nil {
		return "", 0, err
	}

	if err := email.TransitionTo(sw.db, models.EmailStatusSending); err != nil {
		// Another worker claimed it
		return "", 0, err
	}
	if app.Status == models.StatusApproved {
		if err := app.TransitionTo(sw.db, models.StatusSending); err != nil {
			sw.logger.Printf("Application %d transition failed: %v", app.ID, err)
		}
	}

	var prof models.Professor
	if err := sw.db.First(&prof, email.ProfessorID).Error; err != nil {
		return sw.markFailed(email, &app, 0, err), 0, err
	}

	maxRetries := config.AppConfig.Send.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++

		dctx, cancel := context.WithTimeout(ctx, config.AppConfig.Send.DeliveryTimeout)
		lastErr = sw.deliverer.Deliver(dctx, email, prof.Email)
		cancel()

		if lastErr == nil {
			return sw.markSent(email, &app, &prof, attempts), attempts, nil
		}

		sw.logger.Printf("⚠️ Delivery attempt %d for email %d failed: %v", attempts, email.ID, lastErr)

		if !utils.IsRetryable(lastErr) || attempt == maxRetries {
			break
		}

		// Exponential backoff: base * 2^attempt, capped
		backoff := config.AppConfig.Send.BackoffBase * (1 << uint(attempt))
		if lim := config.AppConfig.Send.BackoffCap; lim > 0 && backoff > lim {
			backoff = lim
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
			return sw.markFailed(email, &app, attempts, lastErr), attempts, lastErr
		}
	}

	return sw.markFailed(email, &app, attempts, lastErr), attempts, lastErr
}

func (sw *SendWorker) markSent(email *models.Email, app *models.Application, prof *models.Professor, attempts int) string {
	if err := sw.db.Model(&models.Email{}).Where("id = ?", email.ID).
		Update("attempts", attempts).Error; err != nil {
		sw.logger.Printf("Failed to record attempts for email %d: %v", email.ID, err)
	}
	if err := email.TransitionTo(sw.db, models.EmailStatusSent); err != nil {
		sw.logger.Printf("Email %d sent but transition failed: %v", email.ID, err)
	}
	if app.Status == models.StatusSending {
		if err := app.TransitionTo(sw.db, models.StatusSent); err != nil {
			sw.logger.Printf("Application %d transition failed: %v", app.ID, err)
		}
	}

	now := time.Now()
	if err := sw.db.Model(&models.Professor{}).Where("id = ?", prof.ID).Updates(map[string]interface{}{
		"last_contacted": now,
		"contact_count":  gorm.Expr("contact_count + 1"),
	}).Error; err != nil {
		sw.logger.Printf("Failed to update contact stats for professor %d: %v", prof.ID, err)
	}

	return models.EmailStatusSent
}

func (sw *SendWorker) markFailed(email *models.Email, app *models.Application, attempts int, cause error) string {
	if err := sw.db.Model(&models.Email{}).Where("id = ?", email.ID).Updates(map[string]interface{}{
		"attempts":   attempts,
		"last_error": errString(cause),
	}).Error; err != nil {
		sw.logger.Printf("Failed to record error for email %d: %v", email.ID, err)
	}
	if err := email.TransitionTo(sw.db, models.EmailStatusFailed); err != nil {
		sw.logger.Printf("Email %d transition to failed errored: %v", email.ID, err)
	}
	if app.Status == models.StatusSending {
		if err := sw.db.Model(&models.Application{}).Where("id = ?", app.ID).
			Update("failure_reason", errString(cause)).Error; err != nil {
			sw.logger.Printf("Failed to record failure reason for application %d: %v", app.ID, err)
		}
		if err := app.TransitionTo(sw.db, models.StatusFailed); err != nil {
			sw.logger.Printf("Application %d transition failed: %v", app.ID, err)
		}
	}
	return models.EmailStatusFailed
}

func (sw *SendWorker) finishBatch(batch *models.EmailBatch) {
	now := time.Now()
	if err := sw.db.Model(&models.EmailBatch{}).Where("id = ?", batch.ID).Updates(map[string]interface{}{
		"status":       models.BatchStatusCompleted,
		"completed_at": now,
	}).Error; err != nil {
		sw.logger.Printf("Failed to complete batch %d: %v", batch.ID, err)
		return
	}
	batch.Status = models.BatchStatusCompleted
	batch.CompletedAt = &now
}

// reserveQuota consumes one slot from the rolling hourly send quota. A zero
// limit or missing Redis disables the quota entirely.
func (sw *SendWorker) reserveQuota(ctx context.Context) error {
	limit := config.AppConfig.Send.HourlyLimit
	if limit <= 0 || sw.rdb == nil {
		return nil
	}

	key := fmt.Sprintf("send:quota:%s", time.Now().Format("2006010215"))
	count, err := sw.rdb.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		sw.rdb.Expire(ctx, key, time.Hour)
	}
	if count > int64(limit) {
		return ErrQuotaExceeded
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
