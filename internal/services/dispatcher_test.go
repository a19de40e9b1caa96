package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/finauto/internal/finauto"
	"github.com/soochol/finauto/internal/notify"
	"github.com/soochol/finauto/internal/repository"
)

var testActionContext = finauto.ActionContext{
	AutomationID:   "auto-1",
	AutomationName: "Month-end close",
	UserID:         "user-1",
	RunID:          "run-1",
	Now:            time.Date(2024, 5, 31, 9, 0, 0, 0, time.UTC),
}

func TestDispatcher_Email(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, repository.NewMemoryNotificationRepository())

	out := d.Execute(context.Background(), testActionContext, &finauto.Action{Kind: finauto.EmailAction{
		To:      "cfo@example.com; controller@example.com",
		CC:      "audit@example.com",
		BCC:     "archive@example.com",
		Subject: `{{ automation_name }} for {{ now.Format("January 2006") }}`,
		Body:    "<p>Run {{ run_id }}</p>",
		Format:  finauto.EmailHTML,
	}})
	require.True(t, out.OK, out.Error)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Len(t, msg.To, 2)
	assert.Equal(t, "controller@example.com", msg.To[1].Address)
	assert.Len(t, msg.CC, 1)
	assert.Len(t, msg.BCC, 1)
	assert.Equal(t, "Month-end close for May 2024", msg.Subject)
	assert.Equal(t, "<p>Run run-1</p>", msg.Body)
	assert.True(t, msg.HTML)
}

func TestDispatcher_EmailFailures(t *testing.T) {
	tests := []struct {
		name   string
		mailer notify.Mailer
		action finauto.EmailAction
		want   string
	}{
		{name: "no mailer", mailer: nil, action: finauto.EmailAction{To: "a@example.com"}, want: notify.ErrNotConfigured.Error()},
		{name: "unconfigured smtp", mailer: notify.NewSMTPMailer(notify.SMTPConfig{}), action: finauto.EmailAction{To: "a@example.com"}, want: notify.ErrNotConfigured.Error()},
		{name: "no recipients", mailer: &fakeMailer{}, action: finauto.EmailAction{To: " ; "}, want: "no recipients"},
		{name: "bad address", mailer: &fakeMailer{}, action: finauto.EmailAction{To: "not an address"}, want: "to:"},
		{name: "bad template", mailer: &fakeMailer{}, action: finauto.EmailAction{To: "a@example.com", Subject: "{{ missing_var }}"}, want: "subject"},
		{name: "transport error", mailer: &fakeMailer{err: errors.New("451 try later")}, action: finauto.EmailAction{To: "a@example.com"}, want: "451 try later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.mailer, repository.NewMemoryNotificationRepository())
			out := d.Execute(context.Background(), testActionContext, &finauto.Action{Kind: tt.action})
			assert.False(t, out.OK)
			assert.Contains(t, out.Error, tt.want)
		})
	}
}

func TestDispatcher_Notification(t *testing.T) {
	notes := repository.NewMemoryNotificationRepository()
	d := NewDispatcher(nil, notes)

	out := d.Execute(context.Background(), testActionContext, &finauto.Action{Kind: finauto.NotificationAction{
		Title:   "{{ automation_name }} ran",
		Message: "Books closed",
		Link:    "/reports/close",
	}})
	require.True(t, out.OK, out.Error)

	got, err := notes.ListByUser(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Month-end close ran", got[0].Title)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "auto-1", got[0].AutomationID)
	assert.Equal(t, "/reports/close", got[0].Link)
	assert.False(t, got[0].Read)
}

type failingNotes struct{}

func (failingNotes) Create(context.Context, *finauto.Notification) error {
	return errors.New("insert failed")
}

func TestDispatcher_NotificationWriteFailure(t *testing.T) {
	d := NewDispatcher(nil, failingNotes{})
	out := d.Execute(context.Background(), testActionContext, &finauto.Action{Kind: finauto.NotificationAction{Title: "t"}})
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "insert failed")
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d := NewDispatcher(nil, failingNotes{})
	out := d.Execute(context.Background(), testActionContext, &finauto.Action{})
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "unsupported action kind")
}

func TestRenderTemplate(t *testing.T) {
	env := templateEnv(testActionContext)
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain text", want: "plain text"},
		{in: "{{automation_id}}", want: "auto-1"},
		{in: "{{ user_id }} / {{ run_id }}", want: "user-1 / run-1"},
		{in: `{{ now.Format("2006-01-02") }}`, want: "2024-05-31"},
		{in: `{{ upper(automation_name) }}`, want: "MONTH-END CLOSE"},
		{in: "{{ nope }}", wantErr: true},
	}
	for _, tt := range tests {
		got, err := renderTemplate(tt.in, env)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
