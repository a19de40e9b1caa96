package ports

import (
	"context"
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

// AutomationStore is the automation side of the store the orchestrator
// reads due work from and writes schedule state back to.
// repository.AutomationRepository satisfies it.
type AutomationStore interface {
	Get(ctx context.Context, id string) (*finauto.Automation, error)
	ListDue(ctx context.Context, now time.Time) ([]*finauto.Automation, error)
	UpdateState(ctx context.Context, id string, u finauto.StateUpdate) error
}

// ActionSource returns an automation's actions in execution order.
type ActionSource interface {
	ListByAutomation(ctx context.Context, automationID string) ([]*finauto.Action, error)
}

// NotificationWriter persists in-app notifications.
type NotificationWriter interface {
	Create(ctx context.Context, n *finauto.Notification) error
}

// ActionExecutor performs one action. Failures are reported in the
// Outcome, never as a panic or error return.
type ActionExecutor interface {
	Execute(ctx context.Context, ac finauto.ActionContext, action *finauto.Action) finauto.Outcome
}

// ConcurrencyControl leases an automation to one processor at a time.
type ConcurrencyControl interface {
	TryAcquire(automationID string) bool
	Release(automationID string)
}

// Processor runs one orchestrator invocation. The api and scheduler layers
// depend on this rather than on *services.Orchestrator directly.
type Processor interface {
	Process(ctx context.Context, inv finauto.Invocation) (finauto.Summary, error)
}
