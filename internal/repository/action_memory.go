package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/soochol/finauto/internal/finauto"
)

type storedAction struct {
	action finauto.Action
	seq    int64
}

// MemoryActionRepository is a thread-safe in-memory ActionRepository.
type MemoryActionRepository struct {
	mu    sync.RWMutex
	byID  map[string]*storedAction
	byAut map[string][]*storedAction
	seq   int64
}

func NewMemoryActionRepository() *MemoryActionRepository {
	return &MemoryActionRepository{
		byID:  make(map[string]*storedAction),
		byAut: make(map[string][]*storedAction),
	}
}

func (r *MemoryActionRepository) Create(_ context.Context, a *finauto.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		return fmt.Errorf("action %q already exists", a.ID)
	}
	r.seq++
	sa := &storedAction{action: *a, seq: r.seq}
	r.byID[a.ID] = sa
	r.byAut[a.AutomationID] = append(r.byAut[a.AutomationID], sa)
	return nil
}

func (r *MemoryActionRepository) ListByAutomation(_ context.Context, automationID string) ([]*finauto.Action, error) {
	r.mu.RLock()
	stored := append([]*storedAction(nil), r.byAut[automationID]...)
	r.mu.RUnlock()

	sort.SliceStable(stored, func(i, j int) bool {
		if stored[i].action.SortOrder != stored[j].action.SortOrder {
			return stored[i].action.SortOrder < stored[j].action.SortOrder
		}
		return stored[i].seq < stored[j].seq
	})
	out := make([]*finauto.Action, len(stored))
	for i, sa := range stored {
		a := sa.action
		out[i] = &a
	}
	return out, nil
}
