package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"gradreach/config"
	"gradreach/models"
)

// DeliveryError classifies a failed delivery attempt. Retryable errors are
// transient (connection problems, 4xx greylisting) and worth another
// attempt; the rest are permanent rejections.
type DeliveryError struct {
	Msg       string
	Retryable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return e.Msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a delivery error worth retrying
func IsRetryable(err error) bool {
	if de, ok := err.(*DeliveryError); ok {
		return de.Retryable
	}
	return false
}

// Deliverer hands a single outreach email to a transport. The SMTP
// implementation is used in production; tests substitute fakes.
type Deliverer interface {
	Deliver(ctx context.Context, email *models.Email, toAddress string) error
}

// SMTPDeliverer sends mail through the configured SMTP relay
type SMTPDeliverer struct {
	cfg config.SMTPConfig
}

func NewSMTPDeliverer() *SMTPDeliverer {
	return &SMTPDeliverer{cfg: config.AppConfig.SMTP}
}

// NewMessageID returns an RFC 5322 Message-ID for reply correlation
func NewMessageID() string {
	domain := "gradreach.app"
	if from := config.AppConfig.SMTP.FromEmail; from != "" {
		if idx := strings.LastIndex(from, "@"); idx != -1 {
			domain = from[idx+1:]
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}

// Deliver sends the email over SMTP, honoring context cancellation while
// the dial and send are in flight.
func (d *SMTPDeliverer) Deliver(ctx context.Context, email *models.Email, toAddress string) error {
	if toAddress == "" {
		return &DeliveryError{Msg: "recipient has no email address", Retryable: false}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", d.cfg.FromName, d.cfg.FromEmail))
	m.SetHeader("To", toAddress)
	m.SetHeader("Subject", email.Subject)
	if email.MessageID != "" {
		m.SetHeader("Message-ID", email.MessageID)
	}
	m.SetBody("text/plain", email.Body)
	if html := BuildHTMLBody(email.Body, email.MessageID); html != "" {
		m.AddAlternative("text/html", html)
	}

	dialer := gomail.NewDialer(d.cfg.Host, d.cfg.Port, d.cfg.Username, d.cfg.Password)

	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return &DeliveryError{Msg: "delivery cancelled: " + ctx.Err().Error(), Retryable: true, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			return classifySMTPError(err)
		}
		return nil
	}
}

// classifySMTPError maps SMTP failures onto the retryable/permanent split.
// 4xx responses and connection-level failures are transient; 5xx responses
// are permanent rejections.
func classifySMTPError(err error) *DeliveryError {
	msg := err.Error()
	lower := strings.ToLower(msg)

	permanent := strings.Contains(lower, "550") ||
		strings.Contains(lower, "551") ||
		strings.Contains(lower, "553") ||
		strings.Contains(lower, "554") ||
		strings.Contains(lower, "invalid recipient") ||
		strings.Contains(lower, "authentication failed") ||
		strings.Contains(lower, "535")

	return &DeliveryError{
		Msg:       "smtp delivery failed: " + msg,
		Retryable: !permanent,
		Err:       err,
	}
}
