package bot

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/service"
	"github.com/glebk/treino-bot/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data      string
		action    string
		arg       int
		expectErr bool
	}{
		{"start:3", actionStart, 3, false},
		{"pause:0", actionPause, 0, false},
		{"finish:0", actionFinish, 0, false},
		{"cancel:0", actionCancel, 0, false},
		{"start:0", "", 0, true},
		{"start:x", "", 0, true},
		{"accept:1", "", 0, true},
		{"pause", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			action, arg, err := parseCallback(tt.data)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.action, action)
			assert.Equal(t, tt.arg, arg)
		})
	}
}

func TestParseTrainerRef(t *testing.T) {
	id, ok := parseTrainerRef("t42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, arg := range []string{"", "42", "t", "t-1", "tabc"} {
		_, ok := parseTrainerRef(arg)
		assert.False(t, ok, arg)
	}
}

func TestRenderDays(t *testing.T) {
	days := []*domain.WorkoutDay{
		{DayIndex: 1, Name: "Peito"},
		{DayIndex: 2, Name: "Pernas"},
	}

	text := renderDays(days, []int{2}, false)
	assert.Contains(t, text, "▫️ Dia 1 · Peito")
	assert.Contains(t, text, "▶️ Dia 2 · Pernas")
	assert.NotContains(t, text, "Sem conexão")

	stale := renderDays(days, nil, true)
	assert.Contains(t, stale, "Sem conexão")

	assert.Contains(t, renderDays(nil, nil, false), "ainda não cadastrou")
}

func TestDaysKeyboard(t *testing.T) {
	assert.Nil(t, daysKeyboard(nil, nil))

	days := []*domain.WorkoutDay{{DayIndex: 1}, {DayIndex: 4}}
	markup := daysKeyboard(days, []int{4})
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)

	second := markup.InlineKeyboard[1][0]
	require.NotNil(t, second.CallbackData)
	assert.Equal(t, "start:4", *second.CallbackData)
	assert.Contains(t, second.Text, "em andamento")
}

func TestRenderStatus(t *testing.T) {
	assert.Contains(t, renderStatus(tracker.State{}), "Nenhum treino")

	running := renderStatus(tracker.State{Active: true, DayIndex: 2, DayName: "Pernas", Elapsed: 75})
	assert.Contains(t, running, "Pernas")
	assert.Contains(t, running, "00:01:15")
	assert.Contains(t, running, "Em andamento")

	paused := renderStatus(tracker.State{Active: true, DayIndex: 3, Paused: true})
	assert.Contains(t, paused, "Dia 3")
	assert.Contains(t, paused, "Pausado")
}

func TestSessionKeyboard(t *testing.T) {
	assert.Equal(t, "⏸ Pausar", sessionKeyboard(false).InlineKeyboard[0][0].Text)
	assert.Equal(t, "▶️ Retomar", sessionKeyboard(true).InlineKeyboard[0][0].Text)
	assert.Equal(t, "cancel:0", *sessionKeyboard(false).InlineKeyboard[1][0].CallbackData)
}

func TestRenderNotifications(t *testing.T) {
	assert.Contains(t, renderNotifications(nil, time.UTC), "Nenhuma")

	text := renderNotifications([]*domain.Notification{{
		Title:     "Treino concluído",
		Body:      "**Ana** concluiu o treino **Pernas** em 00:45:00.",
		CreatedAt: time.Date(2025, 3, 4, 18, 30, 0, 0, time.UTC),
	}}, time.UTC)

	assert.Contains(t, text, "04/03 18:30")
	assert.Contains(t, text, "*Ana*")
	assert.NotContains(t, text, "**")
}

func TestErrorText(t *testing.T) {
	assert.Contains(t, errorText(tracker.ErrSessionAlreadyActive), "já tem um treino")
	assert.Contains(t, errorText(fmt.Errorf("wrapped: %w", service.ErrNoTrainer)), "personal")
	assert.Contains(t, errorText(service.ErrSessionEndedElsewhere), "outro lugar")
	assert.Contains(t, errorText(fmt.Errorf("boom")), "Algo deu errado")
}
