package notify

import (
	"context"
	"strings"
	"time"

	gomail "gopkg.in/mail.v2"
)

// EmailConfig holds SMTP configuration for sending emails.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	To         []string
	Subject    string
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier delivers messages via SMTP as plain text.
type EmailNotifier struct {
	cfg    EmailConfig
	dialer mailSender
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.Subject == "" {
		cfg.Subject = "Bandi Sentinel"
	}
	d := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	d.Timeout = 10 * time.Second
	return &EmailNotifier{cfg: cfg, dialer: d}
}

// Send uses the first line of the message as subject suffix.
func (e *EmailNotifier) Send(_ context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.FromEmail)
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", e.subject(text))
	m.SetBody("text/plain", text)

	if err := e.dialer.DialAndSend(m); err != nil {
		return &DeliveryError{Channel: "email", Err: err}
	}
	return nil
}

func (e *EmailNotifier) subject(text string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return e.cfg.Subject
	}
	return e.cfg.Subject + ": " + first
}
