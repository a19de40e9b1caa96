package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"golang.org/x/time/rate"
)

// SMTPConfig holds the relay settings for SMTPMailer.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	FromName      string
	Timeout       time.Duration
	RatePerSecond float64
}

// SMTPMailer sends messages through an SMTP relay. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg     SMTPConfig
	limiter *rate.Limiter
	now     func() time.Time
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &SMTPMailer{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

// Configured reports whether the mailer has a relay host and a sender.
func (m *SMTPMailer) Configured() bool {
	return m.cfg.Host != "" && m.cfg.From != ""
}

func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	rcpts := msg.Recipients()
	if len(rcpts) == 0 {
		return fmt.Errorf("smtp send: no recipients")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("smtp throttle: %w", err)
	}

	from := &mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}
	raw, err := msg.Build(from, m.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if err := m.deliver(ctx, from.Address, rcpts, raw); err != nil {
		return err
	}
	slog.Debug("smtp: message sent", "recipients", len(rcpts), "subject", msg.Subject)
	return nil
}

func (m *SMTPMailer) deliver(ctx context.Context, from string, rcpts []string, raw []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{}

	var conn net.Conn
	var err error
	if m.cfg.Port == 465 {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Host}}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if m.cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if m.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, r := range rcpts {
		if err := c.Rcpt(r); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", r, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	// From here on the relay may hold the message.
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtp write: %w: %w", err, ErrMaybeDelivered)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w: %w", err, ErrMaybeDelivered)
	}
	if err := c.Quit(); err != nil {
		slog.Debug("smtp: quit after accepted message", "err", err)
	}
	return nil
}
