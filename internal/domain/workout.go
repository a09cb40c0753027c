package domain

import (
	"context"
	"time"
)

// WorkoutDay is one day of a student's workout plan
type WorkoutDay struct {
	ID        int64     `json:"id" yaml:"id"`
	StudentID int64     `json:"student_id" yaml:"student_id"`
	TrainerID int64     `json:"trainer_id" yaml:"trainer_id"`
	DayIndex  int       `json:"day_index" yaml:"day_index"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// WorkoutDayRepository defines the interface for workout day storage
type WorkoutDayRepository interface {
	Create(ctx context.Context, day *WorkoutDay) error
	GetByIndex(ctx context.Context, studentID int64, dayIndex int) (*WorkoutDay, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*WorkoutDay, error)
}
