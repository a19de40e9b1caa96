package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/soochol/finauto/internal/finauto"
	memstore "github.com/soochol/finauto/internal/repository/memory"
)

// MemoryAutomationRepository is a thread-safe in-memory AutomationRepository.
type MemoryAutomationRepository struct {
	store *memstore.Store[*finauto.Automation]
}

func NewMemoryAutomationRepository() *MemoryAutomationRepository {
	return &MemoryAutomationRepository{
		store: memstore.New(func(a *finauto.Automation) string { return a.ID }),
	}
}

func (r *MemoryAutomationRepository) Create(ctx context.Context, a *finauto.Automation) error {
	if err := r.store.Insert(ctx, a.Clone()); err != nil {
		return fmt.Errorf("automation %q: %w", a.ID, err)
	}
	return nil
}

func (r *MemoryAutomationRepository) Get(ctx context.Context, id string) (*finauto.Automation, error) {
	a, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) || (err == nil && a.Deleted()) {
		return nil, notFound("automation", id)
	}
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (r *MemoryAutomationRepository) ListByUser(ctx context.Context, userID string) ([]*finauto.Automation, error) {
	matched, err := r.store.Filter(ctx, func(a *finauto.Automation) bool {
		return a.UserID == userID && !a.Deleted()
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return cloneAll(matched), nil
}

func (r *MemoryAutomationRepository) ListDue(ctx context.Context, now time.Time) ([]*finauto.Automation, error) {
	due, err := r.store.Filter(ctx, func(a *finauto.Automation) bool {
		return a.IsDue(now)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRunAt.Equal(*due[j].NextRunAt) {
			return due[i].NextRunAt.Before(*due[j].NextRunAt)
		}
		return due[i].ID < due[j].ID
	})
	return cloneAll(due), nil
}

func (r *MemoryAutomationRepository) UpdateState(ctx context.Context, id string, u finauto.StateUpdate) error {
	return r.modify(ctx, id, func(a *finauto.Automation) {
		applyState(a, u, time.Now())
	})
}

func (r *MemoryAutomationRepository) Delete(ctx context.Context, id string, at time.Time) error {
	return r.modify(ctx, id, func(a *finauto.Automation) {
		a.DeletedAt = &at
		a.IsActive = false
		a.UpdatedAt = at
	})
}

// modify applies fn to a copy of the stored automation and stores the copy,
// so readers holding an earlier value never observe a partial update.
func (r *MemoryAutomationRepository) modify(ctx context.Context, id string, fn func(*finauto.Automation)) error {
	err := r.store.Update(ctx, id, func(a *finauto.Automation) (*finauto.Automation, error) {
		if a.Deleted() {
			return nil, memstore.ErrNotFound
		}
		c := a.Clone()
		fn(c)
		return c, nil
	})
	if errors.Is(err, memstore.ErrNotFound) {
		return notFound("automation", id)
	}
	return err
}

func cloneAll(in []*finauto.Automation) []*finauto.Automation {
	out := make([]*finauto.Automation, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}
