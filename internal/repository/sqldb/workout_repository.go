package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
)

// WorkoutDayRepository implements domain.WorkoutDayRepository on top of Database
type WorkoutDayRepository struct {
	db *Database
}

// NewWorkoutDayRepository creates a new WorkoutDayRepository
func NewWorkoutDayRepository(db *Database) *WorkoutDayRepository {
	return &WorkoutDayRepository{db: db}
}

// Create creates a new workout day
func (r *WorkoutDayRepository) Create(ctx context.Context, day *domain.WorkoutDay) error {
	query := `
		INSERT INTO workout_days (student_id, trainer_id, day_index, name, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`

	now := time.Now()
	err := r.db.GetDB().QueryRowContext(ctx, r.db.rebind(query),
		day.StudentID,
		day.TrainerID,
		day.DayIndex,
		day.Name,
		now,
	).Scan(&day.ID)
	if err != nil {
		return fmt.Errorf("failed to create workout day: %w", err)
	}

	day.CreatedAt = now

	return nil
}

// GetByIndex retrieves a student's workout day by its index in the plan
func (r *WorkoutDayRepository) GetByIndex(ctx context.Context, studentID int64, dayIndex int) (*domain.WorkoutDay, error) {
	query := `
		SELECT id, student_id, trainer_id, day_index, name, created_at
		FROM workout_days
		WHERE student_id = ? AND day_index = ?
	`

	day := &domain.WorkoutDay{}
	err := r.db.GetDB().QueryRowContext(ctx, r.db.rebind(query), studentID, dayIndex).Scan(
		&day.ID,
		&day.StudentID,
		&day.TrainerID,
		&day.DayIndex,
		&day.Name,
		&day.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workout day: %w", err)
	}

	return day, nil
}

// ListByStudent retrieves a student's workout days ordered by index
func (r *WorkoutDayRepository) ListByStudent(ctx context.Context, studentID int64) ([]*domain.WorkoutDay, error) {
	query := `
		SELECT id, student_id, trainer_id, day_index, name, created_at
		FROM workout_days
		WHERE student_id = ?
		ORDER BY day_index
	`

	rows, err := r.db.GetDB().QueryContext(ctx, r.db.rebind(query), studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workout days: %w", err)
	}
	defer rows.Close()

	var days []*domain.WorkoutDay
	for rows.Next() {
		day := &domain.WorkoutDay{}
		if err := rows.Scan(
			&day.ID,
			&day.StudentID,
			&day.TrainerID,
			&day.DayIndex,
			&day.Name,
			&day.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workout day: %w", err)
		}
		days = append(days, day)
	}

	return days, rows.Err()
}
