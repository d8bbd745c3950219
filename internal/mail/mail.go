// Package mail sends the transactional messages of the account flows
// (email verification and password reset).
package mail

import (
	"context"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/iliyamo/staymarket/internal/config"
)

// Sender is implemented by both mailers.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer delivers mail through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send opens a connection per message. The context is not observed by
// gomail; callers bound the request instead.
func (m *SMTPMailer) Send(_ context.Context, to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Log logrus.FieldLogger
}

func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.Log.WithFields(logrus.Fields{"to": to, "subject": subject}).Info(body)
	return nil
}

// New picks the SMTP mailer when a relay host is configured.
func New(cfg config.MailConfig, log logrus.FieldLogger) Sender {
	if cfg.Host == "" {
		log.Info("SMTP_HOST not set, mail is logged instead of sent")
		return LogMailer{Log: log}
	}
	return NewSMTPMailer(cfg)
}
