package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationType tags what a notification is about
type NotificationType string

const (
	NotificationWorkoutCompleted NotificationType = "treino_concluido"
)

// Notification is a message addressed to one user
type Notification struct {
	ID          string           `json:"id"`
	RecipientID int64            `json:"recipient_id"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NotificationRepository defines the interface for notification storage
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool) ([]*Notification, error)
	MarkRead(ctx context.Context, id string) error
}
