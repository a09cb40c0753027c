// Package notify stores notifications and fans them out to Telegram and email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/glebk/treino-bot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// Pusher delivers a short text message to a chat
type Pusher interface {
	Push(ctx context.Context, chatID int64, text string) error
}

// mdRenderer escapes raw HTML in notification bodies
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Dispatcher persists a notification and then delivers it. Only the
// persistence step can fail the call; delivery errors are logged.
type Dispatcher struct {
	notifications domain.NotificationRepository
	users         domain.UserRepository
	email         Sender

	mu     sync.RWMutex
	pusher Pusher
}

// NewDispatcher creates a Dispatcher. email may be nil.
func NewDispatcher(notifications domain.NotificationRepository, users domain.UserRepository, email Sender) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		users:         users,
		email:         email,
	}
}

// SetPusher attaches the chat transport once it exists
func (d *Dispatcher) SetPusher(p Pusher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pusher = p
}

// Notify stores n and delivers it to the recipient
func (d *Dispatcher) Notify(ctx context.Context, n *domain.Notification) error {
	if err := d.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	d.mu.RLock()
	pusher := d.pusher
	d.mu.RUnlock()

	if pusher != nil {
		if err := pusher.Push(ctx, n.RecipientID, ChatText(n)); err != nil {
			log.Printf("Error pushing notification %s to %d: %v", n.ID, n.RecipientID, err)
		}
	}

	if d.email != nil {
		d.sendEmail(ctx, n)
	}

	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, n *domain.Notification) {
	recipient, err := d.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		log.Printf("Error getting recipient %d: %v", n.RecipientID, err)
		return
	}
	if recipient == nil || recipient.Email == "" {
		return
	}

	html, err := RenderHTML(n.Body)
	if err != nil {
		log.Printf("Error rendering notification %s: %v", n.ID, err)
		return
	}

	if _, err := d.email.Send(ctx, SendRequest{
		To:      []string{recipient.Email},
		Subject: n.Title,
		HTML:    html,
	}); err != nil {
		log.Printf("Error emailing notification %s: %v", n.ID, err)
	}
}

// ChatText formats a notification for Telegram's legacy Markdown, which marks
// bold with a single asterisk
func ChatText(n *domain.Notification) string {
	body := strings.ReplaceAll(n.Body, "**", "*")
	return fmt.Sprintf("🔔 *%s*\n\n%s", n.Title, body)
}

// EscapeMarkdown escapes user supplied text placed in a notification body.
// The backslash escapes hold for both Telegram Markdown and goldmark.
func EscapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// RenderHTML converts a markdown body to HTML
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
