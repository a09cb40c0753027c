package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	repo      *fakeSessions
	notifier  *fakeNotifier
	snapshots *snapshot.Store
	timer     *Timer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:      newFakeSessions(),
		notifier:  &fakeNotifier{},
		snapshots: snapshot.NewStore(snapshot.NewMemoryKV()),
	}
	h.timer = NewTimer(h.repo, h.snapshots, h.notifier, Options{Dispatch: syncDispatch})
	return h
}

func dayRequest(dayIndex int) StartRequest {
	return StartRequest{
		StudentID:    7,
		TrainerID:    1,
		WorkoutDayID: int64(100 + dayIndex),
		DayIndex:     dayIndex,
		StudentName:  "Ana",
		DayName:      "Peito e tríceps",
	}
}

func ticks(timer *Timer, n int) {
	for i := 0; i < n; i++ {
		timer.Tick()
	}
}

func TestStart_RequiresIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		req  StartRequest
	}{
		{"missing student", StartRequest{TrainerID: 1, WorkoutDayID: 2}},
		{"missing trainer", StartRequest{StudentID: 1, WorkoutDayID: 2}},
		{"missing day", StartRequest{StudentID: 1, TrainerID: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.timer.Start(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrMissingIdentifiers)
			assert.False(t, h.timer.State().Active)
			assert.Empty(t, h.repo.sessions)
		})
	}
}

func TestStart_CreateFailureLeavesTimerIdle(t *testing.T) {
	h := newHarness(t)
	h.repo.failCreate = true

	_, err := h.timer.Start(context.Background(), dayRequest(1))
	assert.ErrorIs(t, err, errUnavailable)
	assert.False(t, h.timer.State().Active)
	assert.False(t, h.timer.Tick())
}

func TestStart_Twice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.timer.Start(ctx, dayRequest(1))
	require.NoError(t, err)
	_, err = h.timer.Start(ctx, dayRequest(2))
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)
}

func TestStart_PersistsSnapshot(t *testing.T) {
	h := newHarness(t)

	s, err := h.timer.Start(context.Background(), dayRequest(3))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusRunning, s.Status)
	assert.Equal(t, 0, s.DurationSeconds)

	days, err := h.snapshots.StartedDays(7)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, days)
}

func TestScenario_TickTwentyFiveThenFinish(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.timer.Start(ctx, dayRequest(3))
	require.NoError(t, err)

	ticks(h.timer, 25)
	assert.Equal(t, 25, h.timer.State().Elapsed)
	assert.Equal(t, []int{10, 20}, h.repo.flushCalls())

	finished, err := h.timer.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, finished.DurationSeconds)
	assert.Equal(t, domain.SessionStatusCompleted, finished.Status)
	require.NotNil(t, finished.EndedAt)

	require.Len(t, h.repo.finishes, 1)
	assert.Equal(t, finishCall{ID: s.ID, Seconds: 25, Status: domain.SessionStatusCompleted}, h.repo.finishes[0])

	stored, _ := h.repo.GetByID(ctx, s.ID)
	assert.Equal(t, 25, stored.DurationSeconds)
	assert.Equal(t, domain.SessionStatusCompleted, stored.Status)

	require.Len(t, h.notifier.sent, 1)
	n := h.notifier.sent[0]
	assert.Equal(t, int64(1), n.RecipientID)
	assert.Equal(t, domain.NotificationWorkoutCompleted, n.Type)
	assert.Contains(t, n.Body, "00:00:25")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(n.Payload, &payload))
	assert.Equal(t, float64(25), payload["duration_seconds"])
	assert.Equal(t, s.ID, payload["session_id"])

	entry, err := h.snapshots.Get(s.ID)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.False(t, h.timer.State().Active)
}

func TestCompletionNotification_EscapesNames(t *testing.T) {
	s := &domain.WorkoutSession{ID: "s1", TrainerID: 1, DayIndex: 2, DurationSeconds: 61}

	n := completionNotification(s, "ana_b", "Costas *pesado*")
	assert.Equal(t, `**ana\_b** concluiu o treino **Costas \*pesado\*** em 00:01:01.`, n.Body)

	n = completionNotification(s, "", "")
	assert.Equal(t, "**Seu aluno** concluiu o treino **Dia 2** em 00:01:01.", n.Body)
}

func TestFinalDurationEqualsTickCount(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 37, 120} {
		t.Run(fmt.Sprintf("%d ticks", n), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			_, err := h.timer.Start(ctx, dayRequest(1))
			require.NoError(t, err)
			ticks(h.timer, n)

			finished, err := h.timer.Finish(ctx)
			require.NoError(t, err)
			assert.Equal(t, n, finished.DurationSeconds)
			assert.Len(t, h.repo.flushCalls(), n/DefaultFlushEvery)
		})
	}
}

func TestScenario_PauseAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.timer.Start(ctx, dayRequest(1))
	require.NoError(t, err)
	ticks(h.timer, 5)

	paused, err := h.timer.TogglePause(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, progressCall{ID: s.ID, Seconds: 5, Status: domain.SessionStatusPaused}, h.repo.progress[0])

	for i := 0; i < 30; i++ {
		assert.False(t, h.timer.Tick(), "paused timer must not advance")
	}
	assert.Equal(t, 5, h.timer.State().Elapsed)

	paused, err = h.timer.TogglePause(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
	assert.Equal(t, progressCall{ID: s.ID, Seconds: 5, Status: domain.SessionStatusRunning}, h.repo.progress[1])

	ticks(h.timer, 3)
	assert.Equal(t, 8, h.timer.State().Elapsed)

	finished, err := h.timer.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, finished.DurationSeconds)
}

func TestTogglePause_FailureKeepsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.timer.Start(ctx, dayRequest(1))
	require.NoError(t, err)
	ticks(h.timer, 2)

	// Finished from somewhere else: the status write is rejected
	require.NoError(t, h.repo.Finish(ctx, s.ID, 2, domain.SessionStatusCompleted, time.Now()))

	_, err = h.timer.TogglePause(ctx)
	assert.Error(t, err)
	assert.False(t, h.timer.State().Paused)
}

func TestOperationsWithoutSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.timer.TogglePause(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = h.timer.Finish(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = h.timer.Cancel(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	assert.False(t, h.timer.Tick())
	assert.Empty(t, h.repo.progress)
	assert.Empty(t, h.repo.finishes)
}

func TestCancel_NoNotification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.timer.Start(ctx, dayRequest(2))
	require.NoError(t, err)
	ticks(h.timer, 12)

	cancelled, err := h.timer.Cancel(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusCancelled, cancelled.Status)
	assert.Equal(t, 12, cancelled.DurationSeconds)
	assert.Equal(t, finishCall{ID: s.ID, Seconds: 12, Status: domain.SessionStatusCancelled}, h.repo.finishes[0])
	assert.Empty(t, h.notifier.sent)

	days, _ := h.snapshots.StartedDays(7)
	assert.Empty(t, days)
}

func TestNoTicksAfterFinish(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.timer.Start(ctx, dayRequest(1))
	require.NoError(t, err)
	ticks(h.timer, 10)
	_, err = h.timer.Finish(ctx)
	require.NoError(t, err)

	flushes := len(h.repo.flushCalls())
	ticks(h.timer, 20)
	assert.Len(t, h.repo.flushCalls(), flushes)

	stored, _ := h.repo.GetByID(ctx, s.ID)
	assert.Equal(t, 10, stored.DurationSeconds)

	result := NewReconciler(h.repo, h.snapshots, 0).Reconcile(ctx, 7)
	assert.Empty(t, result.Started)
}

func TestFinish_FailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.timer.Start(ctx, dayRequest(1))
	require.NoError(t, err)
	ticks(h.timer, 4)
	h.repo.mu.Lock()
	delete(h.repo.sessions, s.ID)
	h.repo.mu.Unlock()

	_, err = h.timer.Finish(ctx)
	assert.Error(t, err)
	assert.True(t, h.timer.State().Active)
	assert.Empty(t, h.notifier.sent)

	assert.True(t, h.timer.Forget(s.ID))
	assert.False(t, h.timer.State().Active)
	assert.False(t, h.timer.Forget(s.ID))
}

func TestFlushFailureRetriesOnNextTick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.timer.Start(ctx, dayRequest(1))
	require.NoError(t, err)
	h.repo.failFlushes = 1

	ticks(h.timer, 10)
	assert.Equal(t, []int{10}, h.repo.flushCalls())

	h.timer.Tick()
	assert.Equal(t, []int{10, 11}, h.repo.flushCalls())

	stored, _ := h.repo.GetByID(ctx, s.ID)
	assert.Equal(t, 11, stored.DurationSeconds)

	// back on the regular cadence
	ticks(h.timer, 10)
	assert.Equal(t, []int{10, 11, 21}, h.repo.flushCalls())
}

func TestTicksJournalLocally(t *testing.T) {
	h := newHarness(t)

	s, err := h.timer.Start(context.Background(), dayRequest(1))
	require.NoError(t, err)
	ticks(h.timer, 7)

	entry, err := h.snapshots.Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 7, entry.Duration)
	assert.Empty(t, h.repo.flushCalls())
}

func TestResume_UsesLargerOfJournalAndStored(t *testing.T) {
	h := newHarness(t)
	session := &domain.WorkoutSession{
		ID: "existing", StudentID: 7, TrainerID: 1, WorkoutDayID: 101, DayIndex: 1,
		Status: domain.SessionStatusPaused, DurationSeconds: 30,
	}
	h.repo.add(session)
	require.NoError(t, h.snapshots.Persist("existing", 7, 1, true))
	require.NoError(t, h.snapshots.Journal("existing", 44))

	require.NoError(t, h.timer.Resume(session, "Ana", "Pernas"))
	state := h.timer.State()
	assert.Equal(t, 44, state.Elapsed)
	assert.True(t, state.Paused)
	assert.Equal(t, "Pernas", state.DayName)

	// same session again is a no-op, a different one is refused
	assert.NoError(t, h.timer.Resume(session, "Ana", "Pernas"))
	other := *session
	other.ID = "other"
	assert.ErrorIs(t, h.timer.Resume(&other, "Ana", "Pernas"), ErrSessionAlreadyActive)

	done := *session
	done.Status = domain.SessionStatusCompleted
	assert.ErrorIs(t, NewTimer(h.repo, h.snapshots, nil, Options{}).Resume(&done, "", ""), ErrNoActiveSession)
}

func TestClose_FlushesCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.timer.Start(ctx, dayRequest(1))
	require.NoError(t, err)
	ticks(h.timer, 6)

	require.NoError(t, h.timer.Close(ctx))
	stored, _ := h.repo.GetByID(ctx, s.ID)
	assert.Equal(t, 6, stored.DurationSeconds)

	entry, _ := h.snapshots.Get(s.ID)
	require.NotNil(t, entry)
	assert.Equal(t, 6, entry.Duration)

	assert.NoError(t, NewTimer(h.repo, h.snapshots, nil, Options{}).Close(ctx))
}

func TestBackgroundLoop(t *testing.T) {
	repo := newFakeSessions()
	snapshots := snapshot.NewStore(snapshot.NewMemoryKV())
	timer := NewTimer(repo, snapshots, nil, Options{TickInterval: 2 * time.Millisecond})
	ctx := context.Background()

	_, err := timer.Start(ctx, dayRequest(1))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return timer.State().Elapsed >= 3
	}, time.Second, time.Millisecond)

	finished, err := timer.Finish(ctx)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	assert.False(t, timer.State().Active)
	assert.GreaterOrEqual(t, finished.DurationSeconds, 3)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatDuration(0))
	assert.Equal(t, "00:00:25", FormatDuration(25))
	assert.Equal(t, "01:02:05", FormatDuration(3725))
	assert.Equal(t, "00:00:00", FormatDuration(-4))
}
