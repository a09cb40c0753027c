package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/google/uuid"
)

// NotificationRepository implements domain.NotificationRepository on top of Database
type NotificationRepository struct {
	db *Database
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db *Database) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_id, type, title, body, payload, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`

	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	var payload sql.NullString
	if len(n.Payload) > 0 {
		payload = sql.NullString{String: string(n.Payload), Valid: true}
	}

	now := time.Now()
	_, err := r.db.GetDB().ExecContext(ctx, r.db.rebind(query),
		n.ID,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Body,
		payload,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	n.CreatedAt = now

	return nil
}

// ListByRecipient retrieves a user's notifications, newest first
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool) ([]*domain.Notification, error) {
	query := `
		SELECT id, recipient_id, type, title, body, payload, is_read, created_at
		FROM notifications
		WHERE recipient_id = ?
	`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.GetDB().QueryContext(ctx, r.db.rebind(query), recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		var payload sql.NullString
		var isRead int

		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Type,
			&n.Title,
			&n.Body,
			&payload,
			&isRead,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		if payload.Valid {
			n.Payload = []byte(payload.String)
		}
		n.Read = isRead != 0

		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkRead flags a notification as read
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	query := `UPDATE notifications SET is_read = 1 WHERE id = ?`

	result, err := r.db.GetDB().ExecContext(ctx, r.db.rebind(query), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to mark notification %s read: %w", id, domain.ErrNotificationNotFound)
	}

	return nil
}
