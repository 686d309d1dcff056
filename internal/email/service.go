package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/care-scheduling/internal/config"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
)

type Service interface {
	SendReminder(ctx context.Context, to, subject, body string) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

// NewService returns an SMTP sender when cfg is enabled, otherwise one that
// only logs what it would have sent.
func NewService(cfg config.SMTPConfig, log *logger.Logger) Service {
	if !cfg.Enabled {
		return &logService{log: log}
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendReminder(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send reminder to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type logService struct {
	log *logger.Logger
}

func (s *logService) SendReminder(ctx context.Context, to, subject, _ string) error {
	logger.FromContext(ctx, s.log).Debug("smtp disabled, reminder not mailed", "to", to, "subject", subject)
	return nil
}
