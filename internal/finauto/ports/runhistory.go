package ports

import (
	"context"

	"github.com/soochol/finauto/internal/finauto"
)

// RunHistoryPort records and queries automation runs.
type RunHistoryPort interface {
	StartRun(ctx context.Context, automationID string, mode finauto.InvocationMode) (*finauto.Run, error)
	CompleteRun(ctx context.Context, id string) error
	FailRun(ctx context.Context, id string, errMsg string) error
	GetRun(ctx context.Context, id string) (*finauto.Run, error)
	ListRuns(ctx context.Context, automationID string, limit, offset int) ([]*finauto.Run, int, error)
}
