// Package email renders and delivers transactional mail.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"

	"billboard/internal/config"
	"billboard/internal/middleware"
)

// Sender delivers a fully formatted message, headers included.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSender returns an SMTP sender, or a logging sender when no SMTP host is
// configured.
func NewSender(cfg *config.Config) Sender {
	if cfg == nil || cfg.SMTPHost == "" {
		middleware.Logger.Info("SMTP host not configured, emails will be logged")
		return &LoggingSender{}
	}
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPSender{
		addr: cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort),
		from: cfg.SMTPFrom,
		auth: auth,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, s.auth, s.from, to, rawMessage); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	middleware.Logger.InfoContext(ctx, "email sent", slog.Any("to", to), slog.String("subject", subject))
	return nil
}

// LoggingSender writes messages to the application log instead of sending them.
type LoggingSender struct{}

func (LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	middleware.Logger.InfoContext(ctx, "email (not sent)",
		slog.Any("to", to),
		slog.String("subject", subject),
		slog.Int("bytes", len(rawMessage)),
	)
	return nil
}
