package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/service"
	"github.com/glebk/treino-bot/internal/tracker"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback actions
const (
	actionStart  = "start"
	actionPause  = "pause"
	actionFinish = "finish"
	actionCancel = "cancel"
)

// parseCallback splits "action:arg" callback data
func parseCallback(data string) (string, int, error) {
	action, raw, ok := strings.Cut(data, ":")
	if !ok {
		return "", 0, fmt.Errorf("invalid callback data %q", data)
	}

	arg, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid callback argument %q", raw)
	}

	switch action {
	case actionStart:
		if arg <= 0 {
			return "", 0, fmt.Errorf("invalid workout day %d", arg)
		}
	case actionPause, actionFinish, actionCancel:
	default:
		return "", 0, fmt.Errorf("unknown callback action %q", action)
	}

	return action, arg, nil
}

// parseTrainerRef reads the "t<trainerID>" payload of an invite link
func parseTrainerRef(arg string) (int64, bool) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "t") {
		return 0, false
	}
	id, err := strconv.ParseInt(arg[1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// renderDays lists a student's plan, marking the days with a session in progress
func renderDays(days []*domain.WorkoutDay, started []int, stale bool) string {
	if len(days) == 0 {
		return "📭 Seu personal ainda não cadastrou treinos para você."
	}

	inProgress := make(map[int]bool, len(started))
	for _, idx := range started {
		inProgress[idx] = true
	}

	var sb strings.Builder
	sb.WriteString("🏋️ *Seus treinos:*\n\n")
	for _, d := range days {
		marker := "▫️"
		if inProgress[d.DayIndex] {
			marker = "▶️"
		}
		fmt.Fprintf(&sb, "%s Dia %d · %s\n", marker, d.DayIndex, escape(d.Name))
	}

	if stale {
		sb.WriteString("\n⚠️ _Sem conexão com o servidor, mostrando o último estado conhecido._")
	}

	return sb.String()
}

// daysKeyboard has one start button per workout day
func daysKeyboard(days []*domain.WorkoutDay, started []int) *tgbotapi.InlineKeyboardMarkup {
	if len(days) == 0 {
		return nil
	}

	inProgress := make(map[int]bool, len(started))
	for _, idx := range started {
		inProgress[idx] = true
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(days))
	for _, d := range days {
		label := fmt.Sprintf("▶️ Dia %d", d.DayIndex)
		if inProgress[d.DayIndex] {
			label = fmt.Sprintf("⏱ Dia %d (em andamento)", d.DayIndex)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s:%d", actionStart, d.DayIndex)),
		))
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// renderStatus describes the student's timer
func renderStatus(state tracker.State) string {
	if !state.Active {
		return "📭 Nenhum treino em andamento. Use /treinos para começar."
	}

	name := state.DayName
	if name == "" {
		name = fmt.Sprintf("Dia %d", state.DayIndex)
	}

	status := "🟢 Em andamento"
	if state.Paused {
		status = "⏸ Pausado"
	}

	return fmt.Sprintf("🏋️ *%s*\n\n%s\n⏱ Tempo: *%s*", escape(name), status, tracker.FormatDuration(state.Elapsed))
}

// sessionKeyboard holds the controls of a running or paused workout
func sessionKeyboard(paused bool) *tgbotapi.InlineKeyboardMarkup {
	pauseLabel := "⏸ Pausar"
	if paused {
		pauseLabel = "▶️ Retomar"
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(pauseLabel, actionPause+":0"),
			tgbotapi.NewInlineKeyboardButtonData("✅ Finalizar", actionFinish+":0"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancelar", actionCancel+":0"),
		),
	)
	return &markup
}

// renderNotifications lists a trainer's notifications in the given location
func renderNotifications(list []*domain.Notification, loc *time.Location) string {
	if len(list) == 0 {
		return "📭 Nenhuma notificação nova."
	}
	if loc == nil {
		loc = time.Local
	}

	var sb strings.Builder
	sb.WriteString("🔔 *Notificações:*\n")
	for _, n := range list {
		body := strings.ReplaceAll(n.Body, "**", "*")
		fmt.Fprintf(&sb, "\n%s · %s\n%s\n", n.CreatedAt.In(loc).Format("02/01 15:04"), n.Title, body)
	}
	return sb.String()
}

// errorText maps service errors to messages for the user
func errorText(err error) string {
	switch {
	case errors.Is(err, tracker.ErrNoActiveSession):
		return "📭 Nenhum treino em andamento."
	case errors.Is(err, tracker.ErrSessionAlreadyActive):
		return "⚠️ Você já tem um treino em andamento. Use /status para vê-lo."
	case errors.Is(err, tracker.ErrMissingIdentifiers):
		return "⚠️ Não foi possível identificar o treino."
	case errors.Is(err, service.ErrNoTrainer):
		return "⚠️ Você ainda não está vinculado a um personal. Peça o link de convite ao seu personal."
	case errors.Is(err, service.ErrDayNotFound):
		return "⚠️ Esse dia de treino não existe."
	case errors.Is(err, service.ErrUserNotFound):
		return "⚠️ Use /start primeiro."
	case errors.Is(err, service.ErrNotTrainer):
		return "⚠️ Esse link de convite não é de um personal."
	case errors.Is(err, service.ErrSessionEndedElsewhere):
		return "ℹ️ Esse treino já foi encerrado em outro lugar."
	default:
		return "❌ Algo deu errado. Tente novamente mais tarde."
	}
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
