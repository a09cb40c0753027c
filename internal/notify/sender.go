package notify

import (
	"context"
	"time"
)

// SendRequest is one outgoing email
type SendRequest struct {
	From    string
	To      []string
	Subject string
	HTML    string
	ReplyTo string
}

// SendResult identifies a delivered email
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers emails
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
