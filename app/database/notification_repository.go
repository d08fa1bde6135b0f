package database

import (
	"context"
	"fmt"
)

// NotificationStore persists operator notifications
type NotificationStore struct {
	db *DB
}

func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (r *NotificationStore) CreateNotification(ctx context.Context, n Notification) (int64, error) {
	if n.Type == "" {
		n.Type = NotificationInfo
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (title, type, summary_message, detailed_message)
		VALUES (?, ?, ?, ?)
	`, n.Title, string(n.Type), n.SummaryMessage, n.DetailedMessage)
	if err != nil {
		return 0, fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get notification id: %w", err)
	}
	return id, nil
}

// GetRecentNotifications returns the newest notifications first
func (r *NotificationStore) GetRecentNotifications(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, type, summary_message, detailed_message, created_at
		FROM notifications
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		var notificationType string
		if err := rows.Scan(&n.ID, &n.Title, &notificationType, &n.SummaryMessage, &n.DetailedMessage, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		n.Type = NotificationType(notificationType)
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}

	return notifications, nil
}
