package domain

import (
	"context"
	"time"
)

// SessionStatus represents the lifecycle status of a workout session
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "em_andamento"
	SessionStatusPaused    SessionStatus = "pausado"
	SessionStatusCompleted SessionStatus = "concluido"
	SessionStatusCancelled SessionStatus = "cancelado"
)

// ActiveStatuses lists the non-terminal statuses
var ActiveStatuses = []SessionStatus{SessionStatusRunning, SessionStatusPaused}

// IsTerminal reports whether no further transitions are allowed
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Valid reports whether s is one of the known statuses
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusRunning, SessionStatusPaused, SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

// WorkoutSession represents one attempt at a workout day
type WorkoutSession struct {
	ID              string        `json:"id" yaml:"id"`
	StudentID       int64         `json:"student_id" yaml:"student_id"`
	TrainerID       int64         `json:"trainer_id" yaml:"trainer_id"`
	WorkoutDayID    int64         `json:"workout_day_id" yaml:"workout_day_id"`
	DayIndex        int           `json:"day_index" yaml:"day_index"`
	Status          SessionStatus `json:"status" yaml:"status"`
	DurationSeconds int           `json:"duration_seconds" yaml:"duration_seconds"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
}

// SessionRepository defines the interface for workout session storage.
//
// Duration writes never lower the stored value and never touch a session in
// a terminal status.
type SessionRepository interface {
	Create(ctx context.Context, session *WorkoutSession) error
	GetByID(ctx context.Context, id string) (*WorkoutSession, error)
	ListByStudent(ctx context.Context, studentID int64, statuses ...SessionStatus) ([]*WorkoutSession, error)
	FindActive(ctx context.Context, studentID int64, workoutDayID int64) (*WorkoutSession, error)
	ActiveIDs(ctx context.Context, ids []string) (map[string]bool, error)

	FlushDuration(ctx context.Context, id string, seconds int) error
	UpdateProgress(ctx context.Context, id string, seconds int, status SessionStatus) error
	Finish(ctx context.Context, id string, seconds int, status SessionStatus, endedAt time.Time) error
}
