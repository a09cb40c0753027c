package bot

import (
	"context"
	"fmt"
	"log"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/tracker"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleCallbackQuery handles button callbacks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	action, arg, err := parseCallback(query.Data)
	if err != nil || query.Message == nil {
		b.answerCallback(query.ID, "Resposta inválida")
		return
	}

	// Register user if not already
	user := b.registerUser(ctx, query.From)
	if user != nil && user.Role == domain.RoleStudent {
		b.service.Activate(ctx, user.ID)
	}

	switch action {
	case actionStart:
		b.callbackStart(ctx, query, arg)
	case actionPause:
		b.callbackPause(ctx, query)
	case actionFinish:
		b.callbackFinish(ctx, query)
	case actionCancel:
		b.callbackCancel(ctx, query)
	}
}

func (b *Bot) callbackStart(ctx context.Context, query *tgbotapi.CallbackQuery, dayIndex int) {
	if _, err := b.service.StartWorkout(ctx, query.From.ID, dayIndex); err != nil {
		log.Printf("Error starting workout day %d for %d: %v", dayIndex, query.From.ID, err)
		b.answerCallback(query.ID, errorText(err))
		return
	}

	b.answerCallback(query.ID, "💪 Bom treino!")

	state := b.service.Status(query.From.ID)
	b.sendMarkdown(query.Message.Chat.ID, renderStatus(state), sessionKeyboard(state.Paused))
}

func (b *Bot) callbackPause(ctx context.Context, query *tgbotapi.CallbackQuery) {
	paused, err := b.service.TogglePause(ctx, query.From.ID)
	if err != nil {
		b.answerCallback(query.ID, errorText(err))
		b.clearControls(query, err)
		return
	}

	if paused {
		b.answerCallback(query.ID, "⏸ Pausado")
	} else {
		b.answerCallback(query.ID, "▶️ Retomado")
	}

	state := b.service.Status(query.From.ID)
	b.editMarkdown(query.Message.Chat.ID, query.Message.MessageID, renderStatus(state), sessionKeyboard(state.Paused))
}

func (b *Bot) callbackFinish(ctx context.Context, query *tgbotapi.CallbackQuery) {
	finished, err := b.service.FinishWorkout(ctx, query.From.ID)
	if err != nil {
		log.Printf("Error finishing workout for %d: %v", query.From.ID, err)
		b.answerCallback(query.ID, errorText(err))
		b.clearControls(query, err)
		return
	}

	b.answerCallback(query.ID, "🎉 Treino concluído!")
	b.editMarkdown(query.Message.Chat.ID, query.Message.MessageID,
		fmt.Sprintf("🎉 *Treino concluído* em %s\n\nSeu personal foi avisado.", tracker.FormatDuration(finished.DurationSeconds)),
		nil,
	)
}

func (b *Bot) callbackCancel(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.service.CancelWorkout(ctx, query.From.ID); err != nil {
		log.Printf("Error cancelling workout for %d: %v", query.From.ID, err)
		b.answerCallback(query.ID, errorText(err))
		b.clearControls(query, err)
		return
	}

	b.answerCallback(query.ID, "❌ Treino cancelado")
	b.editMarkdown(query.Message.Chat.ID, query.Message.MessageID, "❌ *Treino cancelado*", nil)
}

// clearControls replaces an outdated status message when the workout is gone
func (b *Bot) clearControls(query *tgbotapi.CallbackQuery, err error) {
	if state := b.service.Status(query.From.ID); state.Active {
		return
	}
	b.editMarkdown(query.Message.Chat.ID, query.Message.MessageID, errorText(err), nil)
}
