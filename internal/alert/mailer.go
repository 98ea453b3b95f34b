package alert

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sensorstack/core/internal/infrastructure/config"
)

// Mailer delivers one notification. Satisfied by SMTPMailer; faked in
// tests.
type Mailer interface {
	Send(subject, body string) error
}

// SMTPMailer sends mail through a plain SMTP relay.
//
// No third-party mail library: notifications are short plain-text
// messages and net/smtp covers STARTTLS and AUTH PLAIN against the
// usual relays.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates a mailer for the configured relay.
func NewSMTPMailer(cfg config.SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, fmt.Errorf("smtp from and to addresses are required")
	}
	return &SMTPMailer{cfg: cfg}, nil
}

// Send delivers one message to all configured recipients.
func (m *SMTPMailer) Send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := buildMessage(m.cfg.From, m.cfg.To, subject, body)
	if err := smtp.SendMail(addr, auth, m.cfg.From, m.cfg.To, msg); err != nil {
		return fmt.Errorf("sending alert mail: %w", err)
	}
	return nil
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
