// Package mailer delivers outreach messages over authenticated SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"

	"github.com/ServanKorkmaz/mail-automation/internal/school"
)

// Defaults match Outlook/Office 365 submission.
const (
	DefaultHost = "smtp.office365.com"
	DefaultPort = 587
)

// Config holds SMTP submission settings.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// From defaults to Username.
	From string `mapstructure:"from"`
}

// Validate checks the config has credentials.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return errors.New("smtp username and password are required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("smtp port %d out of range", c.Port)
	}
	return nil
}

type sendFunc func(e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error

// Mailer implements school.Sender with STARTTLS and PLAIN auth.
type Mailer struct {
	cfg    Config
	auth   smtp.Auth
	logger *zap.Logger
	send   sendFunc
}

// New validates cfg and returns a Mailer.
func New(cfg Config, logger *zap.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		cfg:    cfg,
		auth:   smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host),
		logger: logger.Named("mailer"),
		send: func(e *email.Email, addr string, auth smtp.Auth, tlsConfig *tls.Config) error {
			return e.SendWithStartTLS(addr, auth, tlsConfig)
		},
	}, nil
}

// Addr returns host:port of the submission server.
func (m *Mailer) Addr() string {
	return net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
}

// Send delivers one plain-text UTF-8 message. Network failures and 4xx SMTP
// replies are transient.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send canceled: %w", err)
	}
	msg := m.compose(to, subject, body)
	tlsConfig := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}

	done := make(chan error, 1)
	go func() {
		done <- m.send(msg, m.Addr(), m.auth, tlsConfig)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return classifyErr(fmt.Errorf("smtp send to %s: %w", to, err))
		}
		m.logger.Debug("message accepted", zap.String("to", to))
		return nil
	}
}

func (m *Mailer) compose(to, subject, body string) *email.Email {
	msg := email.NewEmail()
	msg.From = m.cfg.From
	msg.To = []string{to}
	msg.Subject = subject
	msg.Text = []byte(body)
	return msg
}

func classifyErr(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return school.Transient(err)
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return school.Transient(err)
	}
	return err
}
