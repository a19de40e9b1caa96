// Package notify delivers outbound email for automation actions.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// ErrNotConfigured is returned by a Mailer that has no SMTP host or sender.
var ErrNotConfigured = errors.New("email delivery is not configured")

// ErrMaybeDelivered marks a failure after the message body was handed to
// the relay. Such a send must not be repeated.
var ErrMaybeDelivered = errors.New("message may have been delivered")

// Mailer sends a fully addressed message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// Message is one outbound email. From is filled in by the Mailer.
type Message struct {
	To      []*mail.Address
	CC      []*mail.Address
	BCC     []*mail.Address
	ReplyTo []*mail.Address
	Subject string
	Body    string
	HTML    bool
}

// Recipients returns every envelope recipient, BCC included.
func (m *Message) Recipients() []string {
	var out []string
	for _, list := range [][]*mail.Address{m.To, m.CC, m.BCC} {
		for _, a := range list {
			out = append(out, a.Address)
		}
	}
	return out
}

// Build renders the RFC 5322 message. BCC recipients are not written to
// the headers.
func (m *Message) Build(from *mail.Address, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", m.To)
	if len(m.CC) > 0 {
		h.SetAddressList("Cc", m.CC)
	}
	if len(m.ReplyTo) > 0 {
		h.SetAddressList("Reply-To", m.ReplyTo)
	}
	h.SetSubject(m.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	contentType := "text/plain"
	if m.HTML {
		contentType = "text/html"
	}
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(w, m.Body); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseAddresses parses a comma or semicolon separated address list. An
// empty or blank list yields no addresses and no error.
func ParseAddresses(list string) ([]*mail.Address, error) {
	list = strings.Trim(strings.ReplaceAll(list, ";", ","), " \t,")
	if list == "" {
		return nil, nil
	}
	addrs, err := mail.ParseAddressList(list)
	if err != nil {
		return nil, fmt.Errorf("parse address list %q: %w", list, err)
	}
	return addrs, nil
}
