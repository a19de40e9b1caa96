package finauto

import "time"

// RunStatus represents the lifecycle state of an automation run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// Run records one execution attempt of an automation's actions.
type Run struct {
	ID           string         `json:"id"`
	AutomationID string         `json:"automation_id"`
	Mode         InvocationMode `json:"mode"`
	Status       RunStatus      `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Error        *string        `json:"error,omitempty"`
}

// Notification is an in-app message addressed to a user.
type Notification struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Link         string    `json:"link,omitempty"`
	AutomationID string    `json:"automation_id,omitempty"`
	RunID        string    `json:"run_id,omitempty"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary reports the result of one orchestrator invocation.
type Summary struct {
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}
