package repository

import (
	"context"

	"github.com/soochol/finauto/internal/finauto"
)

// ActionRepository abstracts persistence for automation actions.
type ActionRepository interface {
	Create(ctx context.Context, a *finauto.Action) error
	// ListByAutomation returns actions ordered by sort_order; ties keep
	// insertion order.
	ListByAutomation(ctx context.Context, automationID string) ([]*finauto.Action, error)
}
