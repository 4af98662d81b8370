package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	gomail "gopkg.in/gomail.v2"

	"github.com/didiberman/Cloud-Run-Google-Drive-Transcriber/internal/gcp"
)

// GomailSender delivers notifications over SMTP. When credentials are unset
// it logs and no-ops, which is deliberate: it makes dry-run deployments
// possible without a mail account.
type GomailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
}

// NewGomailSender reads the SMTP settings from the environment. Missing
// credentials are not an error.
func NewGomailSender() *GomailSender {
	port, err := strconv.Atoi(gcp.GetEnv("SMTP_PORT", "587"))
	if err != nil {
		port = 587
	}
	return &GomailSender{
		host:     gcp.GetEnv("SMTP_HOST", ""),
		port:     port,
		username: gcp.GetEnv("SMTP_USERNAME", ""),
		password: gcp.GetEnv("SMTP_PASSWORD", ""),
		from:     gcp.GetEnv("MAIL_FROM", ""),
		to:       gcp.GetEnv("MAIL_TO", ""),
	}
}

// Send delivers one notification with its attachments.
func (s *GomailSender) Send(_ context.Context, mail Mail) error {
	if s.host == "" || s.username == "" || s.to == "" {
		slog.Warn("SMTP credentials unset. Skipping notification.", "subject", mail.Subject)
		return nil
	}

	from := s.from
	if from == "" {
		from = s.username
	}

	message := gomail.NewMessage()
	message.SetHeader("From", from)
	message.SetHeader("To", s.to)
	message.SetHeader("Subject", mail.Subject)
	message.SetBody("text/plain", mail.Body)
	for _, att := range mail.Attachments {
		content := att.Content
		message.Attach(att.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	dialer := gomail.NewDialer(s.host, s.port, s.username, s.password)
	if err := dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("failed to send notification %q: %w", mail.Subject, err)
	}
	return nil
}
