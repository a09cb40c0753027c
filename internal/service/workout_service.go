package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/snapshot"
	"github.com/glebk/treino-bot/internal/tracker"
)

// Options configure a WorkoutService
type Options struct {
	Timer          tracker.Options
	SnapshotMaxAge time.Duration
}

// WorkoutService handles business logic for students, trainers and workout sessions
type WorkoutService struct {
	userRepo         domain.UserRepository
	dayRepo          domain.WorkoutDayRepository
	sessionRepo      domain.SessionRepository
	notificationRepo domain.NotificationRepository

	snapshots  *snapshot.Store
	reconciler *tracker.Reconciler
	notifier   tracker.Notifier
	timerOpts  tracker.Options

	mu    sync.Mutex
	slots map[int64]*studentSlot
}

// studentSlot serializes a student's workout operations. refs counts the
// callers holding or waiting on mu; a slot is dropped once it has none and
// its timer is idle.
type studentSlot struct {
	mu    sync.Mutex
	refs  int
	timer *tracker.Timer
}

// NewWorkoutService creates a new WorkoutService
func NewWorkoutService(
	userRepo domain.UserRepository,
	dayRepo domain.WorkoutDayRepository,
	sessionRepo domain.SessionRepository,
	notificationRepo domain.NotificationRepository,
	snapshots *snapshot.Store,
	notifier tracker.Notifier,
	opts Options,
) *WorkoutService {
	service := &WorkoutService{
		userRepo:         userRepo,
		dayRepo:          dayRepo,
		sessionRepo:      sessionRepo,
		notificationRepo: notificationRepo,
		snapshots:        snapshots,
		reconciler:       tracker.NewReconciler(sessionRepo, snapshots, opts.SnapshotMaxAge),
		notifier:         notifier,
		timerOpts:        opts.Timer,
		slots:            make(map[int64]*studentSlot),
	}

	// Pick up sessions that were running when the process last stopped
	service.RecoverJournal(context.Background())

	return service
}

// RecoverJournal reconciles every student with a cached session, replaying
// journaled durations and resuming their timers
func (s *WorkoutService) RecoverJournal(ctx context.Context) {
	entries, err := s.snapshots.All()
	if err != nil {
		log.Printf("Error reading workout snapshots: %v", err)
		return
	}

	seen := make(map[int64]bool)
	for _, e := range entries {
		if seen[e.StudentID] {
			continue
		}
		seen[e.StudentID] = true
		s.Activate(ctx, e.StudentID)
	}

	if len(seen) > 0 {
		log.Printf("Recovered workout state for %d students", len(seen))
	}
}

// RegisterUser registers a new student or updates an existing user's names
func (s *WorkoutService) RegisterUser(ctx context.Context, id int64, username, firstName, lastName string) (*domain.User, error) {
	existingUser, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}

	if existingUser != nil {
		if existingUser.Username == username && existingUser.FirstName == firstName && existingUser.LastName == lastName {
			return existingUser, nil
		}
		existingUser.Username = username
		existingUser.FirstName = firstName
		existingUser.LastName = lastName
		if err := s.userRepo.Update(ctx, existingUser); err != nil {
			return nil, err
		}
		return existingUser, nil
	}

	user := &domain.User{
		ID:        id,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Role:      domain.RoleStudent,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// RegisterTrainer turns a registered user into a trainer
func (s *WorkoutService) RegisterTrainer(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == domain.RoleTrainer {
		return user, nil
	}

	user.Role = domain.RoleTrainer
	user.TrainerID = nil
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// LinkStudent assigns a trainer to a student
func (s *WorkoutService) LinkStudent(ctx context.Context, studentID, trainerID int64) error {
	trainer, err := s.requireUser(ctx, trainerID)
	if err != nil {
		return err
	}
	if trainer.Role != domain.RoleTrainer {
		return ErrNotTrainer
	}

	student, err := s.requireUser(ctx, studentID)
	if err != nil {
		return err
	}
	if student.Role == domain.RoleTrainer {
		return fmt.Errorf("trainers cannot be linked as students")
	}

	student.TrainerID = &trainerID
	return s.userRepo.Update(ctx, student)
}

// SetEmail stores the address used for email notifications
func (s *WorkoutService) SetEmail(ctx context.Context, userID int64, email string) error {
	email = strings.TrimSpace(email)
	if email != "" && !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address %q", email)
	}

	user, err := s.requireUser(ctx, userID)
	if err != nil {
		return err
	}

	user.Email = email
	return s.userRepo.Update(ctx, user)
}

// GetUser returns a user by ID
func (s *WorkoutService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// ListStudents returns the students linked to a trainer
func (s *WorkoutService) ListStudents(ctx context.Context, trainerID int64) ([]*domain.User, error) {
	return s.userRepo.ListStudents(ctx, trainerID)
}

// AddWorkoutDay adds a day to a student's plan on behalf of their trainer
func (s *WorkoutService) AddWorkoutDay(ctx context.Context, studentID, trainerID int64, dayIndex int, name string) (*domain.WorkoutDay, error) {
	name = strings.TrimSpace(name)
	if dayIndex <= 0 || name == "" {
		return nil, ErrInvalidDay
	}

	student, err := s.requireUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.TrainerID == nil {
		return nil, ErrNoTrainer
	}
	if *student.TrainerID != trainerID {
		return nil, ErrNotYourStudent
	}

	day := &domain.WorkoutDay{
		StudentID: studentID,
		TrainerID: trainerID,
		DayIndex:  dayIndex,
		Name:      name,
	}
	if err := s.dayRepo.Create(ctx, day); err != nil {
		return nil, err
	}

	return day, nil
}

// ListDays returns a student's workout plan
func (s *WorkoutService) ListDays(ctx context.Context, studentID int64) ([]*domain.WorkoutDay, error) {
	return s.dayRepo.ListByStudent(ctx, studentID)
}

// ListSessions returns a student's sessions, optionally filtered by status
func (s *WorkoutService) ListSessions(ctx context.Context, studentID int64, statuses ...domain.SessionStatus) ([]*domain.WorkoutSession, error) {
	return s.sessionRepo.ListByStudent(ctx, studentID, statuses...)
}

// ListNotifications returns a trainer's notifications, newest first
func (s *WorkoutService) ListNotifications(ctx context.Context, recipientID int64, unreadOnly bool) ([]*domain.Notification, error) {
	return s.notificationRepo.ListByRecipient(ctx, recipientID, unreadOnly)
}

// MarkNotificationRead marks a notification as read
func (s *WorkoutService) MarkNotificationRead(ctx context.Context, id string) error {
	return s.notificationRepo.MarkRead(ctx, id)
}

// ProvisionalDays returns the started days from the local cache alone, for
// the first paint before Activate answers
func (s *WorkoutService) ProvisionalDays(studentID int64) []int {
	return s.reconciler.Provisional(studentID)
}

// Activate reconciles a student's cached state with the database. The
// student's timer adopts an active session it is not tracking yet and drops
// one the database no longer reports.
func (s *WorkoutService) Activate(ctx context.Context, studentID int64) tracker.Result {
	slot := s.acquire(studentID)
	defer s.release(studentID, slot)

	result := s.reconciler.Reconcile(ctx, studentID)
	if result.Stale {
		return result
	}

	timer := s.timerOf(slot, len(result.Active) > 0)
	if timer == nil {
		return result
	}
	state := timer.State()

	if state.Active {
		for _, a := range result.Active {
			if a.ID == state.SessionID {
				return result
			}
		}
		if timer.Forget(state.SessionID) {
			log.Printf("Dropped workout session %s for student %d: no longer active", state.SessionID, studentID)
		}
	}

	if len(result.Active) > 0 {
		// Newest first
		session := result.Active[0]
		studentName, dayName := s.names(ctx, studentID, session.DayIndex)
		if err := timer.Resume(session, studentName, dayName); err != nil {
			log.Printf("Error resuming workout session %s: %v", session.ID, err)
		}
	}

	return result
}

// ReconcileAll activates every student holding a timer or a cached session
// and drops idle timers
func (s *WorkoutService) ReconcileAll(ctx context.Context) {
	students := make(map[int64]bool)

	s.mu.Lock()
	for id, slot := range s.slots {
		if slot.refs == 0 && !slot.busy() {
			delete(s.slots, id)
			continue
		}
		students[id] = true
	}
	s.mu.Unlock()

	entries, err := s.snapshots.All()
	if err != nil {
		log.Printf("Error reading workout snapshots: %v", err)
	}
	for _, e := range entries {
		students[e.StudentID] = true
	}

	for id := range students {
		if ctx.Err() != nil {
			return
		}
		s.Activate(ctx, id)
	}
}

// StartWorkout starts the given day of the student's plan
func (s *WorkoutService) StartWorkout(ctx context.Context, studentID int64, dayIndex int) (*domain.WorkoutSession, error) {
	student, err := s.requireUser(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.TrainerID == nil {
		return nil, ErrNoTrainer
	}

	day, err := s.dayRepo.GetByIndex(ctx, studentID, dayIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to get workout day: %w", err)
	}
	if day == nil {
		return nil, ErrDayNotFound
	}

	slot := s.acquire(studentID)
	defer s.release(studentID, slot)
	timer := s.timerOf(slot, true)

	existing, err := s.sessionRepo.FindActive(ctx, studentID, day.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active session: %w", err)
	}
	if existing != nil {
		if err := timer.Resume(existing, student.DisplayName(), day.Name); err != nil && !errors.Is(err, tracker.ErrSessionAlreadyActive) {
			log.Printf("Error resuming workout session %s: %v", existing.ID, err)
		}
		return nil, tracker.ErrSessionAlreadyActive
	}

	return timer.Start(ctx, tracker.StartRequest{
		StudentID:    studentID,
		TrainerID:    *student.TrainerID,
		WorkoutDayID: day.ID,
		DayIndex:     day.DayIndex,
		StudentName:  student.DisplayName(),
		DayName:      day.Name,
	})
}

// TogglePause pauses or resumes the student's workout. It returns whether
// the workout is now paused.
func (s *WorkoutService) TogglePause(ctx context.Context, studentID int64) (bool, error) {
	slot := s.acquire(studentID)
	defer s.release(studentID, slot)
	timer := s.timerOf(slot, true)
	sessionID := timer.State().SessionID

	paused, err := timer.TogglePause(ctx)
	if err != nil {
		return paused, s.checkEndedElsewhere(ctx, timer, sessionID, err)
	}
	return paused, nil
}

// FinishWorkout completes the student's workout and notifies the trainer
func (s *WorkoutService) FinishWorkout(ctx context.Context, studentID int64) (*domain.WorkoutSession, error) {
	slot := s.acquire(studentID)
	defer s.release(studentID, slot)
	timer := s.timerOf(slot, true)
	sessionID := timer.State().SessionID

	finished, err := timer.Finish(ctx)
	if err != nil {
		return nil, s.checkEndedElsewhere(ctx, timer, sessionID, err)
	}
	return finished, nil
}

// CancelWorkout abandons the student's workout
func (s *WorkoutService) CancelWorkout(ctx context.Context, studentID int64) (*domain.WorkoutSession, error) {
	slot := s.acquire(studentID)
	defer s.release(studentID, slot)
	timer := s.timerOf(slot, true)
	sessionID := timer.State().SessionID

	cancelled, err := timer.Cancel(ctx)
	if err != nil {
		return nil, s.checkEndedElsewhere(ctx, timer, sessionID, err)
	}
	return cancelled, nil
}

// Status returns the student's timer state
func (s *WorkoutService) Status(studentID int64) tracker.State {
	s.mu.Lock()
	var timer *tracker.Timer
	if slot, ok := s.slots[studentID]; ok {
		timer = slot.timer
	}
	s.mu.Unlock()

	if timer == nil {
		return tracker.State{}
	}
	return timer.State()
}

// Shutdown stops every timer and flushes their counters
func (s *WorkoutService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	timers := make(map[int64]*tracker.Timer, len(s.slots))
	for id, slot := range s.slots {
		if slot.timer != nil {
			timers[id] = slot.timer
		}
	}
	s.mu.Unlock()

	for studentID, t := range timers {
		if err := t.Close(ctx); err != nil {
			log.Printf("Error closing timer for student %d: %v", studentID, err)
		}
	}
}

// checkEndedElsewhere looks at the stored row after a failed write. A
// session that is already terminal is dropped from the timer.
func (s *WorkoutService) checkEndedElsewhere(ctx context.Context, timer *tracker.Timer, sessionID string, cause error) error {
	if sessionID == "" || errors.Is(cause, tracker.ErrNoActiveSession) {
		return cause
	}

	stored, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		log.Printf("Error checking workout session %s: %v", sessionID, err)
		return cause
	}
	if stored != nil && !stored.Status.IsTerminal() {
		return cause
	}

	timer.Forget(sessionID)
	if err := s.snapshots.Remove(sessionID); err != nil {
		log.Printf("Error removing snapshot for session %s: %v", sessionID, err)
	}
	return ErrSessionEndedElsewhere
}

// acquire locks the student's slot, creating it if needed
func (s *WorkoutService) acquire(studentID int64) *studentSlot {
	s.mu.Lock()
	slot, ok := s.slots[studentID]
	if !ok {
		slot = &studentSlot{}
		s.slots[studentID] = slot
	}
	slot.refs++
	s.mu.Unlock()

	slot.mu.Lock()
	return slot
}

// release unlocks the slot and drops it when nobody else wants it and its
// timer holds no session
func (s *WorkoutService) release(studentID int64, slot *studentSlot) {
	slot.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	slot.refs--
	if slot.refs == 0 && !slot.busy() && s.slots[studentID] == slot {
		delete(s.slots, studentID)
	}
}

// timerOf returns the slot's timer. A missing timer is only created when
// create is set.
func (s *WorkoutService) timerOf(slot *studentSlot, create bool) *tracker.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot.timer == nil && create {
		slot.timer = tracker.NewTimer(s.sessionRepo, s.snapshots, s.notifier, s.timerOpts)
	}
	return slot.timer
}

// busy reports whether the slot's timer holds a session
func (slot *studentSlot) busy() bool {
	return slot.timer != nil && slot.timer.State().Active
}

func (s *WorkoutService) requireUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *WorkoutService) names(ctx context.Context, studentID int64, dayIndex int) (string, string) {
	var studentName, dayName string

	if user, err := s.userRepo.GetByID(ctx, studentID); err != nil {
		log.Printf("Error getting user %d: %v", studentID, err)
	} else if user != nil {
		studentName = user.DisplayName()
	}

	if day, err := s.dayRepo.GetByIndex(ctx, studentID, dayIndex); err != nil {
		log.Printf("Error getting workout day %d for student %d: %v", dayIndex, studentID, err)
	} else if day != nil {
		dayName = day.Name
	}

	return studentName, dayName
}
