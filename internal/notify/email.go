package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/mail.v2"
)

const emailTimeout = 15 * time.Second

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Email sends each message as a plain-text mail over SMTP.
type Email struct {
	dialer *mail.Dialer
	from   string
	to     []string
}

func NewEmail(cfg EmailConfig) *Email {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = emailTimeout
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	d.SSL = cfg.Port == 465
	return &Email{dialer: d, from: cfg.From, to: cfg.To}
}

func (e *Email) Name() string { return "email" }

func (e *Email) message(body string) *mail.Message {
	subject := body
	if i := strings.IndexByte(subject, '\n'); i >= 0 {
		subject = subject[:i]
	}
	if len(subject) > 120 {
		subject = subject[:120]
	}

	m := mail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", "dns-failover: "+subject)
	m.SetBody("text/plain", body)
	return m
}

func (e *Email) Send(ctx context.Context, message string) error {
	done := make(chan error, 1)
	go func() {
		done <- e.dialer.DialAndSend(e.message(message))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
