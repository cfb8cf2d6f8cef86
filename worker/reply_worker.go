package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"gorm.io/gorm"

	"gradreach/config"
	"gradreach/models"
)

// ReplyWorker polls the configured IMAP mailbox and matches incoming mail
// against sent outreach so applications move to the replied state without
// manual bookkeeping.
type ReplyWorker struct {
	db     *gorm.DB
	logger *log.Logger

	lastCheck time.Time
}

func NewReplyWorker(db *gorm.DB, logger *log.Logger) *ReplyWorker {
	return &ReplyWorker{
		db:        db,
		logger:    logger,
		lastCheck: time.Now().Add(-24 * time.Hour),
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.logger.Println("Starting reply worker...")
	ticker := time.NewTicker(5 * time.Minute)

	for {
		select {
		case <-ticker.C:
			if err := rw.CheckReplies(ctx); err != nil {
				rw.logger.Printf("Reply check failed: %v", err)
			}
		case <-ctx.Done():
			rw.logger.Println("Stopping reply worker...")
			ticker.Stop()
			return
		}
	}
}

// CheckReplies fetches new messages and applies any reply matches
func (rw *ReplyWorker) CheckReplies(ctx context.Context) error {
	cfg := config.AppConfig.IMAP
	if cfg.Host == "" {
		return nil
	}

	c, err := rw.connect(cfg)
	if err != nil {
		return fmt.Errorf("imap connect: %w", err)
	}
	defer c.Logout()

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}

	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, true); err != nil {
		return fmt.Errorf("select %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = rw.lastCheck.Add(-1 * time.Hour) // overlap to be safe
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("imap search: %w", err)
	}
	if len(ids) == 0 {
		rw.lastCheck = time.Now()
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	matched := 0
	for msg := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if msg == nil || msg.Envelope == nil {
			continue
		}
		if rw.applyReply(msg.Envelope, msg.GetBody(section)) {
			matched++
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("imap fetch: %w", err)
	}

	if matched > 0 {
		rw.logger.Printf("✅ Matched %d replies", matched)
	}
	rw.lastCheck = time.Now()
	return nil
}

func (rw *ReplyWorker) connect(cfg config.IMAPConfig) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if strings.EqualFold(cfg.Encryption, "none") || strings.EqualFold(cfg.Encryption, "STARTTLS") {
		c, err := client.Dial(addr)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(cfg.Encryption, "STARTTLS") {
			if err := c.StartTLS(nil); err != nil {
				c.Logout()
				return nil, err
			}
		}
		return c, nil
	}
	return client.DialTLS(addr, nil)
}

// applyReply matches one envelope against sent outreach. The In-Reply-To
// header is authoritative; the sender address is the fallback for clients
// that strip threading headers.
func (rw *ReplyWorker) applyReply(env *imap.Envelope, body io.Reader) bool {
	var email models.Email

	if env.InReplyTo != "" {
		if err := rw.db.Where("message_id = ? AND status = ?",
			strings.TrimSpace(env.InReplyTo), models.EmailStatusSent).
			First(&email).Error; err == nil {
			return rw.markReplied(&email, env, body)
		}
	}

	for _, from := range env.From {
		if from == nil || from.MailboxName == "" {
			continue
		}
		addr := strings.ToLower(from.MailboxName + "@" + from.HostName)
		var prof models.Professor
		if err := rw.db.Where("LOWER(email) = ?", addr).First(&prof).Error; err != nil {
			continue
		}
		if err := rw.db.Where("professor_id = ? AND status = ?",
			prof.ID, models.EmailStatusSent).
			Order("sent_at DESC").First(&email).Error; err == nil {
			return rw.markReplied(&email, env, body)
		}
	}
	return false
}

// extractReplySnippet pulls the first text/plain part of the reply so a
// short excerpt can be pinned to the application notes.
func extractReplySnippet(body io.Reader) string {
	if body == nil {
		return ""
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		return ""
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		if _, ok := part.Header.(*mail.InlineHeader); !ok {
			continue
		}
		buf, err := io.ReadAll(io.LimitReader(part.Body, 500))
		if err != nil {
			return ""
		}
		snippet := strings.TrimSpace(string(buf))
		if snippet != "" {
			return snippet
		}
	}
}

func (rw *ReplyWorker) markReplied(email *models.Email, env *imap.Envelope, body io.Reader) bool {
	var app models.Application
	if err := rw.db.First(&app, email.ApplicationID).Error; err != nil {
		rw.logger.Printf("Reply matched email %d but application load failed: %v", email.ID, err)
		return false
	}

	if !app.CanTransitionTo(models.StatusReplied) {
		return false
	}
	if err := app.TransitionTo(rw.db, models.StatusReplied); err != nil {
		rw.logger.Printf("Failed to mark application %d replied: %v", app.ID, err)
		return false
	}

	if err := rw.db.Model(&models.Professor{}).Where("id = ?", email.ProfessorID).
		Update("response_received", true).Error; err != nil {
		rw.logger.Printf("Failed to flag professor %d response: %v", email.ProfessorID, err)
	}

	if snippet := extractReplySnippet(body); snippet != "" {
		note := "Reply received: " + snippet
		if err := rw.db.Model(&models.Application{}).Where("id = ? AND notes = ''", app.ID).
			Update("notes", note).Error; err != nil {
			rw.logger.Printf("Failed to save reply snippet for application %d: %v", app.ID, err)
		}
	}

	subject := ""
	if env != nil {
		subject = env.Subject
	}
	rw.logger.Printf("📨 Application %d marked replied (%q)", app.ID, subject)
	return true
}
