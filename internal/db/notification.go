package db

import (
	"context"
	"fmt"

	"github.com/soochol/finauto/internal/finauto"
)

// CreateNotification stores a new in-app notification.
func (d *DB) CreateNotification(ctx context.Context, n *finauto.Notification) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, message, link, automation_id, run_id, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.UserID, n.Title, n.Message, n.Link, n.AutomationID, n.RunID, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotificationsByUser returns up to limit notifications, newest first.
func (d *DB) ListNotificationsByUser(ctx context.Context, userID string, limit int) ([]*finauto.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, user_id, title, message, link, automation_id, run_id, read, created_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var result []*finauto.Notification
	for rows.Next() {
		n := &finauto.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Link,
			&n.AutomationID, &n.RunID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
