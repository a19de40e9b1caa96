package repository

import (
	"context"
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

// RunRepository abstracts persistence for automation run records.
type RunRepository interface {
	Create(ctx context.Context, run *finauto.Run) error
	Get(ctx context.Context, id string) (*finauto.Run, error)
	Update(ctx context.Context, run *finauto.Run) error
	// ListByAutomation returns runs newest first plus the total count.
	ListByAutomation(ctx context.Context, automationID string, limit, offset int) ([]*finauto.Run, int, error)
	// MarkOrphanedRunsFailed closes every run still in "running" with msg
	// and returns how many were closed.
	MarkOrphanedRunsFailed(ctx context.Context, msg string, at time.Time) (int, error)
}
