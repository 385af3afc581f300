// Package sender delivers notification messages over SMTP, with a log-only
// fallback for environments without an email provider.
package sender

import (
	"context"

	"github.com/wneessen/go-mail"

	"gigroute_backend/platform/config"
	"gigroute_backend/platform/logger"
)

// Message is one outbound email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// FromConfig returns the SMTP sender when email is enabled, the log sender
// otherwise.
func FromConfig(cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return &LogSender{log: log}, nil
	}
	return NewSMTPSender(cfg)
}

// SMTPSender delivers via an SMTP relay.
type SMTPSender struct {
	client      *mail.Client
	fromName    string
	fromAddress string
}

// NewSMTPSender builds an SMTP sender from config.
func NewSMTPSender(cfg config.EmailConfig) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.GetSMTPPort()),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.GetSMTPUsername() != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.GetSMTPUsername()),
			mail.WithPassword(cfg.GetSMTPPassword()),
		)
	}

	client, err := mail.NewClient(cfg.GetSMTPHost(), opts...)
	if err != nil {
		return nil, err
	}

	return &SMTPSender{
		client:      client,
		fromName:    cfg.GetEmailFromName(),
		fromAddress: cfg.GetEmailFromAddress(),
	}, nil
}

// Send delivers one message.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromAddress); err != nil {
		return err
	}
	if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
		return err
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)

	return s.client.DialAndSendWithContext(ctx, m)
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	log *logger.Logger
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.Info("email suppressed",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}
