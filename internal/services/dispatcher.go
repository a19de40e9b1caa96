package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/finauto/ports"
	"github.com/soochol/finauto/internal/notify"
)

var _ ports.ActionExecutor = (*Dispatcher)(nil)

// Dispatcher executes a single action. It never retries; the caller
// decides what a failed Outcome means for the run.
type Dispatcher struct {
	mailer        notify.Mailer
	notifications ports.NotificationWriter
	now           func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil mailer makes every email
// action fail with notify.ErrNotConfigured.
func NewDispatcher(mailer notify.Mailer, notifications ports.NotificationWriter) *Dispatcher {
	return &Dispatcher{mailer: mailer, notifications: notifications, now: time.Now}
}

// Execute runs action and reports the result.
func (d *Dispatcher) Execute(ctx context.Context, ac finauto.ActionContext, action *finauto.Action) finauto.Outcome {
	var err error
	switch k := action.Kind.(type) {
	case finauto.EmailAction:
		err = d.sendEmail(ctx, ac, k)
	case finauto.NotificationAction:
		err = d.createNotification(ctx, ac, k)
	default:
		err = fmt.Errorf("unsupported action kind %T", action.Kind)
	}
	if err != nil {
		return finauto.Failed(err.Error())
	}
	return finauto.Succeeded()
}

func (d *Dispatcher) sendEmail(ctx context.Context, ac finauto.ActionContext, e finauto.EmailAction) error {
	if d.mailer == nil {
		return notify.ErrNotConfigured
	}

	msg := &notify.Message{HTML: e.EffectiveFormat() == finauto.EmailHTML}
	var err error
	if msg.To, err = notify.ParseAddresses(e.To); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	if len(msg.To) == 0 {
		return errors.New("email action has no recipients")
	}
	if msg.CC, err = notify.ParseAddresses(e.CC); err != nil {
		return fmt.Errorf("cc: %w", err)
	}
	if msg.BCC, err = notify.ParseAddresses(e.BCC); err != nil {
		return fmt.Errorf("bcc: %w", err)
	}
	if msg.ReplyTo, err = notify.ParseAddresses(e.ReplyTo); err != nil {
		return fmt.Errorf("reply_to: %w", err)
	}

	env := templateEnv(ac)
	if msg.Subject, err = renderTemplate(e.Subject, env); err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if msg.Body, err = renderTemplate(e.Body, env); err != nil {
		return fmt.Errorf("body: %w", err)
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (d *Dispatcher) createNotification(ctx context.Context, ac finauto.ActionContext, n finauto.NotificationAction) error {
	env := templateEnv(ac)
	title, err := renderTemplate(n.Title, env)
	if err != nil {
		return fmt.Errorf("title: %w", err)
	}
	message, err := renderTemplate(n.Message, env)
	if err != nil {
		return fmt.Errorf("message: %w", err)
	}

	rec := &finauto.Notification{
		ID:           finauto.GenerateID("ntf"),
		UserID:       ac.UserID,
		Title:        title,
		Message:      message,
		Link:         n.Link,
		AutomationID: ac.AutomationID,
		RunID:        ac.RunID,
		CreatedAt:    d.now().UTC(),
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if err := d.notifications.Create(ctx, rec); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}
