// Package tracker owns the elapsed-time counter of an in-progress workout and
// reconciles the local snapshot cache with the sessions stored in the database.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/notify"
	"github.com/glebk/treino-bot/internal/snapshot"
)

const (
	DefaultFlushEvery   = 10
	DefaultFlushTimeout = 5 * time.Second
)

// Notifier delivers the notification emitted when a workout is finished
type Notifier interface {
	Notify(ctx context.Context, n *domain.Notification) error
}

// Options tune a Timer. Zero values fall back to defaults.
type Options struct {
	// TickInterval drives the background loop. Zero or negative disables the
	// loop and callers advance the counter with Tick.
	TickInterval time.Duration
	// FlushEvery is the number of ticks between duration flushes
	FlushEvery int
	// FlushTimeout bounds each asynchronous flush
	FlushTimeout time.Duration
	Now          func() time.Time
	// Dispatch runs asynchronous flushes. Defaults to a new goroutine.
	Dispatch func(func())
}

func (o Options) withDefaults() Options {
	if o.FlushEvery <= 0 {
		o.FlushEvery = DefaultFlushEvery
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Dispatch == nil {
		o.Dispatch = func(f func()) { go f() }
	}
	return o
}

// StartRequest identifies the workout being started
type StartRequest struct {
	StudentID    int64
	TrainerID    int64
	WorkoutDayID int64
	DayIndex     int
	StudentName  string
	DayName      string
}

func (r StartRequest) validate() error {
	if r.StudentID <= 0 || r.TrainerID <= 0 || r.WorkoutDayID <= 0 {
		return ErrMissingIdentifiers
	}
	return nil
}

// State is a read-only view of a Timer
type State struct {
	Active    bool
	SessionID string
	DayIndex  int
	DayName   string
	Elapsed   int
	Paused    bool
}

// Timer tracks the elapsed seconds of at most one workout session
type Timer struct {
	sessions  domain.SessionRepository
	snapshots *snapshot.Store
	notifier  Notifier
	opts      Options

	mu          sync.Mutex
	session     *domain.WorkoutSession
	studentName string
	dayName     string
	elapsed     int
	sinceFlush  int
	paused      bool
	retryFlush  bool

	stopLoop context.CancelFunc
	loopGen  uint64
}

// NewTimer creates an idle Timer
func NewTimer(sessions domain.SessionRepository, snapshots *snapshot.Store, notifier Notifier, opts Options) *Timer {
	return &Timer{
		sessions:  sessions,
		snapshots: snapshots,
		notifier:  notifier,
		opts:      opts.withDefaults(),
	}
}

// Start creates a new running session and resets the counter
func (t *Timer) Start(ctx context.Context, req StartRequest) (*domain.WorkoutSession, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return nil, ErrSessionAlreadyActive
	}

	session := &domain.WorkoutSession{
		StudentID:       req.StudentID,
		TrainerID:       req.TrainerID,
		WorkoutDayID:    req.WorkoutDayID,
		DayIndex:        req.DayIndex,
		Status:          domain.SessionStatusRunning,
		DurationSeconds: 0,
		StartedAt:       t.opts.Now(),
	}
	if err := t.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start workout: %w", err)
	}

	t.hold(session, req.StudentName, req.DayName, 0)
	t.startLoopLocked()

	copied := *session
	return &copied, nil
}

// Resume adopts a non-terminal session that already exists in the database,
// continuing from whichever is larger: the stored duration or the local journal
func (t *Timer) Resume(session *domain.WorkoutSession, studentName, dayName string) error {
	if session == nil || session.Status.IsTerminal() {
		return ErrNoActiveSession
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		if t.session.ID == session.ID {
			return nil
		}
		return ErrSessionAlreadyActive
	}

	elapsed := session.DurationSeconds
	entry, err := t.snapshots.Get(session.ID)
	if err != nil {
		log.Printf("Error reading snapshot for session %s: %v", session.ID, err)
	} else if entry != nil && entry.Duration > elapsed {
		elapsed = entry.Duration
	}

	copied := *session
	t.hold(&copied, studentName, dayName, elapsed)
	t.paused = session.Status == domain.SessionStatusPaused
	t.startLoopLocked()

	return nil
}

// hold makes session the active one. Callers hold t.mu.
func (t *Timer) hold(session *domain.WorkoutSession, studentName, dayName string, elapsed int) {
	t.session = session
	t.studentName = studentName
	t.dayName = dayName
	t.elapsed = elapsed
	t.sinceFlush = 0
	t.paused = false
	t.retryFlush = false

	if err := t.snapshots.Persist(session.ID, session.StudentID, session.DayIndex, true); err != nil {
		log.Printf("Error persisting snapshot for session %s: %v", session.ID, err)
		return
	}
	if err := t.snapshots.Journal(session.ID, elapsed); err != nil {
		log.Printf("Error journaling session %s: %v", session.ID, err)
	}
}

// Tick advances the counter by one second if a session is running.
// It reports whether the counter moved.
func (t *Timer) Tick() bool {
	t.mu.Lock()
	flush, moved := t.advanceLocked()
	t.mu.Unlock()

	if flush != nil {
		t.opts.Dispatch(flush)
	}
	return moved
}

// tick is the loop's entry point; ticks from a stopped loop are dropped
func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.loopGen {
		t.mu.Unlock()
		return
	}
	flush, _ := t.advanceLocked()
	t.mu.Unlock()

	if flush != nil {
		t.opts.Dispatch(flush)
	}
}

func (t *Timer) advanceLocked() (func(), bool) {
	if t.session == nil || t.paused {
		return nil, false
	}

	t.elapsed++
	t.sinceFlush++

	id := t.session.ID
	if err := t.snapshots.Journal(id, t.elapsed); err != nil {
		log.Printf("Error journaling session %s: %v", id, err)
	}

	if t.sinceFlush < t.opts.FlushEvery && !t.retryFlush {
		return nil, true
	}

	t.sinceFlush = 0
	t.retryFlush = false
	seconds := t.elapsed

	return func() { t.flush(id, seconds) }, true
}

// flush writes a duration in the background. A failure schedules a retry on
// the next tick.
func (t *Timer) flush(id string, seconds int) {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.FlushTimeout)
	defer cancel()

	if err := t.sessions.FlushDuration(ctx, id, seconds); err != nil {
		log.Printf("Error flushing duration for session %s: %v", id, err)

		t.mu.Lock()
		if t.session != nil && t.session.ID == id {
			t.retryFlush = true
		}
		t.mu.Unlock()
	}
}

// TogglePause flips between running and paused and stores the counter with
// the new status. It returns whether the session is now paused.
func (t *Timer) TogglePause(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return false, ErrNoActiveSession
	}

	paused := !t.paused
	status := domain.SessionStatusRunning
	if paused {
		status = domain.SessionStatusPaused
	}

	if err := t.sessions.UpdateProgress(ctx, t.session.ID, t.elapsed, status); err != nil {
		return t.paused, fmt.Errorf("failed to update workout: %w", err)
	}

	t.paused = paused
	t.session.Status = status
	t.session.DurationSeconds = t.elapsed
	t.sinceFlush = 0
	t.retryFlush = false

	return paused, nil
}

// Finish completes the session and notifies the trainer
func (t *Timer) Finish(ctx context.Context) (*domain.WorkoutSession, error) {
	finished, studentName, dayName, err := t.end(ctx, domain.SessionStatusCompleted)
	if err != nil {
		return nil, err
	}

	if t.notifier != nil {
		n := completionNotification(finished, studentName, dayName)
		if err := t.notifier.Notify(ctx, n); err != nil {
			log.Printf("Error notifying trainer %d about session %s: %v", finished.TrainerID, finished.ID, err)
		}
	}

	return finished, nil
}

// Cancel abandons the session without notifying anyone
func (t *Timer) Cancel(ctx context.Context) (*domain.WorkoutSession, error) {
	finished, _, _, err := t.end(ctx, domain.SessionStatusCancelled)
	return finished, err
}

// end stops the loop before writing the terminal status so no late tick can
// touch the finished session. On failure the session stays held and the loop
// restarts.
func (t *Timer) end(ctx context.Context, status domain.SessionStatus) (*domain.WorkoutSession, string, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return nil, "", "", ErrNoActiveSession
	}

	t.stopLoopLocked()

	endedAt := t.opts.Now()
	if err := t.sessions.Finish(ctx, t.session.ID, t.elapsed, status, endedAt); err != nil {
		t.startLoopLocked()
		return nil, "", "", fmt.Errorf("failed to end workout: %w", err)
	}

	if err := t.snapshots.Remove(t.session.ID); err != nil {
		log.Printf("Error removing snapshot for session %s: %v", t.session.ID, err)
	}

	finished := *t.session
	finished.Status = status
	finished.DurationSeconds = t.elapsed
	finished.EndedAt = &endedAt
	studentName, dayName := t.studentName, t.dayName

	t.session = nil
	t.studentName = ""
	t.dayName = ""
	t.elapsed = 0
	t.sinceFlush = 0
	t.paused = false
	t.retryFlush = false

	return &finished, studentName, dayName, nil
}

// Close stops the loop and makes a best-effort flush of the counter. The
// journal already holds the value, so a failed flush is recovered on the
// next reconciliation.
func (t *Timer) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLoopLocked()

	if t.session == nil {
		return nil
	}
	if err := t.snapshots.Journal(t.session.ID, t.elapsed); err != nil {
		log.Printf("Error journaling session %s: %v", t.session.ID, err)
	}
	if err := t.sessions.FlushDuration(ctx, t.session.ID, t.elapsed); err != nil {
		return fmt.Errorf("failed to flush session %s on close: %w", t.session.ID, err)
	}
	return nil
}

// Forget drops the held session without writing anything. Used when the
// database reports the session was finished elsewhere.
func (t *Timer) Forget(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil || t.session.ID != sessionID {
		return false
	}

	t.stopLoopLocked()
	t.session = nil
	t.elapsed = 0
	t.sinceFlush = 0
	t.paused = false
	t.retryFlush = false
	return true
}

// State returns a snapshot of the timer
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return State{}
	}
	return State{
		Active:    true,
		SessionID: t.session.ID,
		DayIndex:  t.session.DayIndex,
		DayName:   t.dayName,
		Elapsed:   t.elapsed,
		Paused:    t.paused,
	}
}

func (t *Timer) startLoopLocked() {
	t.stopLoopLocked()
	if t.opts.TickInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.stopLoop = cancel
	go t.run(ctx, t.loopGen, t.opts.TickInterval)
}

func (t *Timer) stopLoopLocked() {
	if t.stopLoop != nil {
		t.stopLoop()
		t.stopLoop = nil
	}
	t.loopGen++
}

func (t *Timer) run(ctx context.Context, gen uint64, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(gen)
		}
	}
}

func completionNotification(s *domain.WorkoutSession, studentName, dayName string) *domain.Notification {
	if studentName == "" {
		studentName = "Seu aluno"
	}
	if dayName == "" {
		dayName = fmt.Sprintf("Dia %d", s.DayIndex)
	}

	payload, _ := json.Marshal(map[string]any{
		"session_id":       s.ID,
		"student_id":       s.StudentID,
		"workout_day_id":   s.WorkoutDayID,
		"day_index":        s.DayIndex,
		"duration_seconds": s.DurationSeconds,
	})

	body := fmt.Sprintf("**%s** concluiu o treino **%s** em %s.",
		notify.EscapeMarkdown(studentName), notify.EscapeMarkdown(dayName), FormatDuration(s.DurationSeconds))

	return &domain.Notification{
		RecipientID: s.TrainerID,
		Type:        domain.NotificationWorkoutCompleted,
		Title:       "Treino concluído",
		Body:        body,
		Payload:     payload,
	}
}

// FormatDuration renders seconds as HH:MM:SS
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
