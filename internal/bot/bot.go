package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/glebk/treino-bot/internal/config"
	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	buttonWorkouts = "🏋️ Meus treinos"
	buttonStatus   = "⏱ Status"
)

// Bot represents the Telegram bot
type Bot struct {
	api     *tgbotapi.BotAPI
	service *service.WorkoutService
	config  *config.Config
}

// New creates a new Bot instance
func New(token string, service *service.WorkoutService, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:     api,
		service: service,
		config:  cfg,
	}, nil
}

// Start receives updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	// Start background routine to reconcile cached sessions with the database
	go b.reconcileRoutine(ctx)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallbackQuery(ctx, update.CallbackQuery)
			}
		}
	}
}

// reconcileRoutine runs in background and drops timers whose sessions were
// ended elsewhere
func (b *Bot) reconcileRoutine(ctx context.Context) {
	ticker := time.NewTicker(b.config.Tracker.ReconcileInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.service.ReconcileAll(ctx)
		}
	}
}

// Push sends a Markdown message to a chat
func (b *Bot) Push(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to push message: %w", err)
	}
	return nil
}

// InviteLink returns the deep link that links a student to the trainer
func (b *Bot) InviteLink(trainerID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=t%d", b.api.Self.UserName, trainerID)
}

// registerUser registers or updates a user
func (b *Bot) registerUser(ctx context.Context, user *tgbotapi.User) *domain.User {
	username := user.UserName
	if username == "" {
		username = fmt.Sprintf("user%d", user.ID)
	}

	registered, err := b.service.RegisterUser(ctx, user.ID, username, user.FirstName, user.LastName)
	if err != nil {
		log.Printf("Error registering user %d: %v", user.ID, err)
		return nil
	}
	return registered
}

// sendMessage sends a simple text message
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// sendMarkdown sends a Markdown message with an optional keyboard
func (b *Bot) sendMarkdown(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) *tgbotapi.Message {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup != nil {
		msg.ReplyMarkup = *markup
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		log.Printf("Error sending message: %v", err)
		return nil
	}
	return &sent
}

// editMarkdown replaces the text and inline keyboard of a sent message
func (b *Bot) editMarkdown(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	var edit tgbotapi.EditMessageTextConfig
	if markup != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	edit.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Error editing message: %v", err)
	}
}

// answerCallback answers a callback query
func (b *Bot) answerCallback(callbackID string, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
}
