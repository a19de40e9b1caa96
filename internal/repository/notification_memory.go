package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/soochol/finauto/internal/finauto"
	memstore "github.com/soochol/finauto/internal/repository/memory"
)

// MemoryNotificationRepository is a thread-safe in-memory NotificationRepository.
type MemoryNotificationRepository struct {
	store *memstore.Store[*finauto.Notification]
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{
		store: memstore.New(func(n *finauto.Notification) string { return n.ID }),
	}
}

func (r *MemoryNotificationRepository) Create(ctx context.Context, n *finauto.Notification) error {
	c := *n
	if err := r.store.Insert(ctx, &c); err != nil {
		return fmt.Errorf("notification %q: %w", n.ID, err)
	}
	return nil
}

func (r *MemoryNotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*finauto.Notification, error) {
	matched, err := r.store.Filter(ctx, func(n *finauto.Notification) bool {
		return n.UserID == userID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*finauto.Notification, len(matched))
	for i, n := range matched {
		c := *n
		out[i] = &c
	}
	return out, nil
}
