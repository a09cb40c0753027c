package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/tracker"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleMessage handles incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Register or update user
	user := b.registerUser(ctx, message.From)

	command := message.Command()
	switch message.Text {
	case buttonWorkouts:
		command = "treinos"
	case buttonStatus:
		command = "status"
	}

	// Any update from a student brings their cached state in line with the
	// database; /treinos does it itself after the first paint
	if user != nil && user.Role == domain.RoleStudent && command != "treinos" {
		b.service.Activate(ctx, user.ID)
	}

	if command == "" {
		return
	}

	switch command {
	case "start":
		b.handleStart(ctx, message)
	case "personal":
		b.handleTrainer(ctx, message)
	case "treinos":
		b.handleWorkouts(ctx, message)
	case "status":
		b.handleStatus(message)
	case "pausar":
		b.handlePause(ctx, message)
	case "finalizar":
		b.handleFinish(ctx, message)
	case "cancelar":
		b.handleCancel(ctx, message)
	case "notificacoes":
		b.handleNotifications(ctx, message)
	case "email":
		b.handleEmail(ctx, message)
	case "help":
		b.handleHelp(message)
	default:
		b.sendMessage(message.Chat.ID, "Comando desconhecido. Use /help para ver os comandos.")
	}
}

// handleStart handles the /start command, linking the student when it comes
// from a trainer's invite link
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	if trainerID, ok := parseTrainerRef(message.CommandArguments()); ok {
		if err := b.service.LinkStudent(ctx, message.From.ID, trainerID); err != nil {
			log.Printf("Error linking student %d to trainer %d: %v", message.From.ID, trainerID, err)
			b.sendMessage(message.Chat.ID, errorText(err))
		} else {
			b.sendMessage(message.Chat.ID, "🤝 Pronto! Você foi vinculado ao seu personal.")
			b.notifyTrainerLinked(ctx, trainerID, message.From)
		}
	}

	text := fmt.Sprintf(
		"👋 Olá, %s! Bem-vindo ao bot de treinos.\n\n"+
			"Use /treinos para ver seu plano e começar um treino\n"+
			"Use /status para acompanhar o treino em andamento\n"+
			"Use /help para ver todos os comandos",
		message.From.FirstName,
	)

	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonWorkouts),
			tgbotapi.NewKeyboardButton(buttonStatus),
		),
	)

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = keyboard

	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending start message: %v", err)
	}
}

func (b *Bot) notifyTrainerLinked(ctx context.Context, trainerID int64, from *tgbotapi.User) {
	name := from.FirstName
	if from.UserName != "" {
		name = "@" + from.UserName
	}
	if err := b.Push(ctx, trainerID, fmt.Sprintf("🤝 %s agora é seu aluno.", escape(name))); err != nil {
		log.Printf("Error notifying trainer %d: %v", trainerID, err)
	}
}

// handleTrainer registers the sender as a trainer and returns the invite link
func (b *Bot) handleTrainer(ctx context.Context, message *tgbotapi.Message) {
	if _, err := b.service.RegisterTrainer(ctx, message.From.ID); err != nil {
		log.Printf("Error registering trainer %d: %v", message.From.ID, err)
		b.sendMessage(message.Chat.ID, errorText(err))
		return
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf(
		"💪 Você agora é personal!\n\nEnvie este link aos seus alunos:\n%s\n\n"+
			"Use /notificacoes para ver os treinos concluídos e /email para receber avisos por email.",
		b.InviteLink(message.From.ID),
	))
}

// handleWorkouts paints the plan from the local cache first and corrects it
// once the database answers
func (b *Bot) handleWorkouts(ctx context.Context, message *tgbotapi.Message) {
	studentID := message.From.ID

	days, err := b.service.ListDays(ctx, studentID)
	if err != nil {
		log.Printf("Error listing workout days: %v", err)
		b.sendMessage(message.Chat.ID, errorText(err))
		return
	}

	provisional := b.service.ProvisionalDays(studentID)
	sent := b.sendMarkdown(message.Chat.ID, renderDays(days, provisional, false), daysKeyboard(days, provisional))

	result := b.service.Activate(ctx, studentID)
	if sent == nil || (slices.Equal(provisional, result.Started) && !result.Stale) {
		return
	}

	b.editMarkdown(sent.Chat.ID, sent.MessageID, renderDays(days, result.Started, result.Stale), daysKeyboard(days, result.Started))
}

// handleStatus shows the current workout
func (b *Bot) handleStatus(message *tgbotapi.Message) {
	state := b.service.Status(message.From.ID)
	if !state.Active {
		b.sendMessage(message.Chat.ID, renderStatus(state))
		return
	}
	b.sendMarkdown(message.Chat.ID, renderStatus(state), sessionKeyboard(state.Paused))
}

func (b *Bot) handlePause(ctx context.Context, message *tgbotapi.Message) {
	paused, err := b.service.TogglePause(ctx, message.From.ID)
	if err != nil {
		b.reportError(message.Chat.ID, "toggling pause", err)
		return
	}

	if paused {
		b.sendMessage(message.Chat.ID, "⏸ Treino pausado. Use /pausar de novo para retomar.")
	} else {
		b.sendMessage(message.Chat.ID, "▶️ Treino retomado!")
	}
}

func (b *Bot) handleFinish(ctx context.Context, message *tgbotapi.Message) {
	finished, err := b.service.FinishWorkout(ctx, message.From.ID)
	if err != nil {
		b.reportError(message.Chat.ID, "finishing workout", err)
		return
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf("🎉 Treino concluído em %s! Seu personal foi avisado.", tracker.FormatDuration(finished.DurationSeconds)))
}

func (b *Bot) handleCancel(ctx context.Context, message *tgbotapi.Message) {
	if _, err := b.service.CancelWorkout(ctx, message.From.ID); err != nil {
		b.reportError(message.Chat.ID, "cancelling workout", err)
		return
	}

	b.sendMessage(message.Chat.ID, "❌ Treino cancelado.")
}

// handleNotifications shows a trainer's unread notifications and marks them read
func (b *Bot) handleNotifications(ctx context.Context, message *tgbotapi.Message) {
	user, err := b.service.GetUser(ctx, message.From.ID)
	if err != nil || user == nil || user.Role != domain.RoleTrainer {
		b.sendMessage(message.Chat.ID, "⛔️ Apenas personais recebem notificações. Use /personal para se cadastrar.")
		return
	}

	list, err := b.service.ListNotifications(ctx, user.ID, true)
	if err != nil {
		b.reportError(message.Chat.ID, "listing notifications", err)
		return
	}

	b.sendMarkdown(message.Chat.ID, renderNotifications(list, b.config.Bot.Location), nil)

	for _, n := range list {
		if err := b.service.MarkNotificationRead(ctx, n.ID); err != nil {
			log.Printf("Error marking notification %s as read: %v", n.ID, err)
		}
	}
}

// handleEmail sets or clears the address for email notifications
func (b *Bot) handleEmail(ctx context.Context, message *tgbotapi.Message) {
	email := strings.TrimSpace(message.CommandArguments())
	if err := b.service.SetEmail(ctx, message.From.ID, email); err != nil {
		log.Printf("Error setting email for %d: %v", message.From.ID, err)
		b.sendMessage(message.Chat.ID, "⚠️ Email inválido. Use /email nome@exemplo.com")
		return
	}

	if email == "" {
		b.sendMessage(message.Chat.ID, "📪 Avisos por email desativados.")
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("📬 Avisos serão enviados para %s.", email))
}

// handleHelp shows help information
func (b *Bot) handleHelp(message *tgbotapi.Message) {
	text := `*Bot de treinos - Ajuda*

*Alunos:*
/treinos - Ver seu plano e começar um treino
/status - Ver o treino em andamento
/pausar - Pausar ou retomar o treino
/finalizar - Concluir o treino e avisar seu personal
/cancelar - Cancelar o treino

*Personais:*
/personal - Cadastrar-se como personal e obter o link de convite
/notificacoes - Ver treinos concluídos pelos alunos
/email - Receber os avisos também por email

O tempo é salvo a cada 10 segundos. Se o bot reiniciar, o treino continua de onde parou.`

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending help: %v", err)
	}
}

func (b *Bot) reportError(chatID int64, action string, err error) {
	if !errors.Is(err, tracker.ErrNoActiveSession) {
		log.Printf("Error %s: %v", action, err)
	}
	b.sendMessage(chatID, errorText(err))
}
