package finauto

import "time"

// ActionType is the stored discriminant of an action.
type ActionType string

const (
	ActionEmail        ActionType = "email"
	ActionNotification ActionType = "notification"
)

// EmailFormat selects the body content type of an email action.
type EmailFormat string

const (
	EmailText EmailFormat = "text"
	EmailHTML EmailFormat = "html"
)

// ActionKind is the side effect an action performs.
// Implementations: EmailAction, NotificationAction.
type ActionKind interface {
	actionKind()
	Type() ActionType
}

// EmailAction sends one email. Address fields hold comma or semicolon
// separated lists.
type EmailAction struct {
	To      string      `json:"to"`
	CC      string      `json:"cc,omitempty"`
	BCC     string      `json:"bcc,omitempty"`
	ReplyTo string      `json:"reply_to,omitempty"`
	Subject string      `json:"subject"`
	Body    string      `json:"body"`
	Format  EmailFormat `json:"format,omitempty"`
}

// NotificationAction creates an in-app notification for the automation owner.
type NotificationAction struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

func (EmailAction) actionKind()        {}
func (NotificationAction) actionKind() {}

func (EmailAction) Type() ActionType        { return ActionEmail }
func (NotificationAction) Type() ActionType { return ActionNotification }

// EffectiveFormat returns Format, defaulting to plain text.
func (e EmailAction) EffectiveFormat() EmailFormat {
	if e.Format == EmailHTML {
		return EmailHTML
	}
	return EmailText
}

// Action is one ordered step of an automation.
type Action struct {
	ID           string     `json:"id"`
	AutomationID string     `json:"automation_id"`
	SortOrder    int        `json:"sort_order"`
	Kind         ActionKind `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Outcome is the result of executing a single action.
type Outcome struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Succeeded returns a successful outcome.
func Succeeded() Outcome { return Outcome{OK: true} }

// Failed returns a failed outcome carrying msg.
func Failed(msg string) Outcome { return Outcome{Error: msg} }

// ActionContext identifies the run an action executes in. Now is the run's
// start time in the automation's schedule timezone (UTC for manual
// triggers).
type ActionContext struct {
	AutomationID   string
	AutomationName string
	UserID         string
	RunID          string
	Now            time.Time
}
