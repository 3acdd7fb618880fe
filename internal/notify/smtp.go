package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig describes an authenticated STARTTLS submission relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPTransport sends messages through an SMTP relay, one connection per message.
type SMTPTransport struct {
	client *mail.Client
}

// NewSMTPTransport validates cfg and prepares a client. No connection is made here.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, errors.New("notify: smtp host is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("notify: smtp credentials are required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: smtp client: %w", err)
	}
	return &SMTPTransport{client: client}, nil
}

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("notify: sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("notify: recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}
