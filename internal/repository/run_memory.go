package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soochol/finauto/internal/finauto"
)

const maxRunRecords = 1000

// MemoryRunRepository stores run records in memory with FIFO eviction.
type MemoryRunRepository struct {
	mu      sync.RWMutex
	records map[string]finauto.Run
	order   []string // insertion order for FIFO eviction
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{
		records: make(map[string]finauto.Run),
	}
}

func (r *MemoryRunRepository) Create(_ context.Context, run *finauto.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) >= maxRunRecords {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.records, oldest)
	}

	r.records[run.ID] = *run
	r.order = append(r.order, run.ID)
	return nil
}

func (r *MemoryRunRepository) Get(_ context.Context, id string) (*finauto.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.records[id]
	if !ok {
		return nil, notFound("run", id)
	}
	return &run, nil
}

func (r *MemoryRunRepository) Update(_ context.Context, run *finauto.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[run.ID]; !ok {
		return notFound("run", run.ID)
	}
	r.records[run.ID] = *run
	return nil
}

func (r *MemoryRunRepository) ListByAutomation(_ context.Context, automationID string, limit, offset int) ([]*finauto.Run, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*finauto.Run
	for _, rec := range r.records {
		if rec.AutomationID == automationID {
			rec := rec
			filtered = append(filtered, &rec)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (r *MemoryRunRepository) MarkOrphanedRunsFailed(_ context.Context, msg string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, rec := range r.records {
		if rec.Status != finauto.RunStatusRunning {
			continue
		}
		m := msg
		rec.Status = finauto.RunStatusFailed
		rec.Error = &m
		rec.CompletedAt = &at
		r.records[id] = rec
		n++
	}
	return n, nil
}
