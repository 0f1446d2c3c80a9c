// Package mailer turns email events from the broker into SMTP mail.
package mailer

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"leadflow/internal/config"
	"leadflow/pkg/models"
)

// Sender delivers one email event.
type Sender interface {
	Send(ctx context.Context, event models.EmailEvent) error
}

type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
	timeout   time.Duration
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SMTPSender{
		host:      cfg.Host,
		port:      cfg.Port,
		username:  cfg.Username,
		password:  cfg.Password,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
		timeout:   timeout,
	}
}

func (s *SMTPSender) buildMessage(event models.EmailEvent) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(event.Recipients...); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(event.Subject)
	msg.SetMessageID()
	msg.SetGenHeader(gomail.HeaderXMailer, "leadflow")
	msg.SetBodyString(gomail.TypeTextPlain, event.Body)
	return msg, nil
}

func (s *SMTPSender) Send(ctx context.Context, event models.EmailEvent) error {
	msg, err := s.buildMessage(event)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.timeout),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
