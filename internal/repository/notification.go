package repository

import (
	"context"

	"github.com/soochol/finauto/internal/finauto"
)

// NotificationRepository abstracts persistence for in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *finauto.Notification) error
	// ListByUser returns up to limit notifications, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*finauto.Notification, error)
}
