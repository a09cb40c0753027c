package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
)

var errUnavailable = errors.New("database unavailable")

type progressCall struct {
	ID      string
	Seconds int
	Status  domain.SessionStatus
}

type finishCall struct {
	ID      string
	Seconds int
	Status  domain.SessionStatus
}

// fakeSessions is an in-memory SessionRepository that records every write
type fakeSessions struct {
	mu       sync.Mutex
	nextID   int
	sessions map[string]*domain.WorkoutSession

	flushes  []int
	progress []progressCall
	finishes []finishCall

	failCreate  bool
	failFlushes int
	failList    bool
	failActive  bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*domain.WorkoutSession)}
}

func (f *fakeSessions) add(s *domain.WorkoutSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *s
	f.sessions[s.ID] = &copied
}

func (f *fakeSessions) Create(_ context.Context, s *domain.WorkoutSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errUnavailable
	}
	f.nextID++
	s.ID = fmt.Sprintf("s%d", f.nextID)
	copied := *s
	f.sessions[s.ID] = &copied
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id string) (*domain.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessions) ListByStudent(_ context.Context, studentID int64, statuses ...domain.SessionStatus) ([]*domain.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errUnavailable
	}
	var out []*domain.WorkoutSession
	for _, s := range f.sessions {
		if s.StudentID != studentID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, s.Status) {
			continue
		}
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeSessions) FindActive(_ context.Context, studentID int64, dayID int64) (*domain.WorkoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.StudentID == studentID && s.WorkoutDayID == dayID && !s.Status.IsTerminal() {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) ActiveIDs(_ context.Context, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failActive {
		return nil, errUnavailable
	}
	out := make(map[string]bool)
	for _, id := range ids {
		if s, ok := f.sessions[id]; ok && !s.Status.IsTerminal() {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeSessions) FlushDuration(_ context.Context, id string, seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes = append(f.flushes, seconds)
	if f.failFlushes > 0 {
		f.failFlushes--
		return errUnavailable
	}
	if s, ok := f.sessions[id]; ok && !s.Status.IsTerminal() && seconds >= s.DurationSeconds {
		s.DurationSeconds = seconds
	}
	return nil
}

func (f *fakeSessions) UpdateProgress(_ context.Context, id string, seconds int, status domain.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progressCall{ID: id, Seconds: seconds, Status: status})
	s, ok := f.sessions[id]
	if !ok || s.Status.IsTerminal() {
		return errors.New("not updated")
	}
	s.Status = status
	if seconds > s.DurationSeconds {
		s.DurationSeconds = seconds
	}
	return nil
}

func (f *fakeSessions) Finish(_ context.Context, id string, seconds int, status domain.SessionStatus, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishes = append(f.finishes, finishCall{ID: id, Seconds: seconds, Status: status})
	s, ok := f.sessions[id]
	if !ok || s.Status.IsTerminal() {
		return errors.New("not updated")
	}
	s.Status = status
	s.DurationSeconds = seconds
	s.EndedAt = &endedAt
	return nil
}

func (f *fakeSessions) flushCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.flushes...)
}

func containsStatus(list []domain.SessionStatus, s domain.SessionStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*domain.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, notification *domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.err
}

func syncDispatch(f func()) { f() }
