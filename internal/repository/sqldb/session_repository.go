package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
	"github.com/google/uuid"
)

// ErrSessionNotUpdated is returned when a write matched no non-terminal session
var ErrSessionNotUpdated = errors.New("session not found or already finished")

// SessionRepository implements domain.SessionRepository on top of Database
type SessionRepository struct {
	db *Database
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *Database) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, student_id, trainer_id, workout_day_id, day_index, status, duration_seconds, started_at, ended_at`

// Create creates a new workout session. A second non-terminal session for
// the same student and day is rejected by the unique index.
func (r *SessionRepository) Create(ctx context.Context, session *domain.WorkoutSession) error {
	query := `
		INSERT INTO workout_sessions (id, student_id, trainer_id, workout_day_id, day_index, status, duration_seconds, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.Status == "" {
		session.Status = domain.SessionStatusRunning
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now()
	}

	_, err := r.db.GetDB().ExecContext(ctx, r.db.rebind(query),
		session.ID,
		session.StudentID,
		session.TrainerID,
		session.WorkoutDayID,
		session.DayIndex,
		session.Status,
		session.DurationSeconds,
		session.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.WorkoutSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM workout_sessions WHERE id = ?`

	session, err := scanSession(r.db.GetDB().QueryRowContext(ctx, r.db.rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// ListByStudent retrieves a student's sessions, newest first, optionally
// filtered by a status set
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID int64, statuses ...domain.SessionStatus) ([]*domain.WorkoutSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM workout_sessions WHERE student_id = ?`
	args := []any{studentID}

	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY started_at DESC`

	rows, err := r.db.GetDB().QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.WorkoutSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// FindActive retrieves the non-terminal session for a student and day
func (r *SessionRepository) FindActive(ctx context.Context, studentID int64, workoutDayID int64) (*domain.WorkoutSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM workout_sessions
		WHERE student_id = ? AND workout_day_id = ? AND status IN (?, ?)
		LIMIT 1`

	session, err := scanSession(r.db.GetDB().QueryRowContext(ctx, r.db.rebind(query),
		studentID,
		workoutDayID,
		domain.SessionStatusRunning,
		domain.SessionStatusPaused,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}

	return session, nil
}

// ActiveIDs reports which of ids belong to non-terminal sessions
func (r *SessionRepository) ActiveIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	active := make(map[string]bool)
	if len(ids) == 0 {
		return active, nil
	}

	query := `SELECT id FROM workout_sessions WHERE status IN (?, ?) AND id IN (` + placeholders(len(ids)) + `)`
	args := []any{domain.SessionStatusRunning, domain.SessionStatusPaused}
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.GetDB().QueryContext(ctx, r.db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to check active sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		active[id] = true
	}

	return active, rows.Err()
}

// FlushDuration stores the elapsed seconds of a running or paused session.
// Lower values than the stored one are ignored, so late arrivals are harmless.
func (r *SessionRepository) FlushDuration(ctx context.Context, id string, seconds int) error {
	query := `
		UPDATE workout_sessions
		SET duration_seconds = ?
		WHERE id = ? AND status IN (?, ?) AND duration_seconds <= ?
	`

	_, err := r.db.GetDB().ExecContext(ctx, r.db.rebind(query),
		seconds,
		id,
		domain.SessionStatusRunning,
		domain.SessionStatusPaused,
		seconds,
	)
	if err != nil {
		return fmt.Errorf("failed to flush session duration: %w", err)
	}

	return nil
}

// UpdateProgress stores duration and a non-terminal status together
func (r *SessionRepository) UpdateProgress(ctx context.Context, id string, seconds int, status domain.SessionStatus) error {
	if status.IsTerminal() {
		return fmt.Errorf("failed to update session: status %q is terminal", status)
	}

	query := `
		UPDATE workout_sessions
		SET status = ?, duration_seconds = CASE WHEN duration_seconds > ? THEN duration_seconds ELSE ? END
		WHERE id = ? AND status IN (?, ?)
	`

	result, err := r.db.GetDB().ExecContext(ctx, r.db.rebind(query),
		status,
		seconds,
		seconds,
		id,
		domain.SessionStatusRunning,
		domain.SessionStatusPaused,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return checkAffected(result)
}

// Finish moves a session into a terminal status with its final duration
func (r *SessionRepository) Finish(ctx context.Context, id string, seconds int, status domain.SessionStatus, endedAt time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("failed to finish session: status %q is not terminal", status)
	}

	query := `
		UPDATE workout_sessions
		SET status = ?, ended_at = ?, duration_seconds = CASE WHEN duration_seconds > ? THEN duration_seconds ELSE ? END
		WHERE id = ? AND status IN (?, ?)
	`

	result, err := r.db.GetDB().ExecContext(ctx, r.db.rebind(query),
		status,
		endedAt,
		seconds,
		seconds,
		id,
		domain.SessionStatusRunning,
		domain.SessionStatusPaused,
	)
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}

	return checkAffected(result)
}

func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrSessionNotUpdated
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.WorkoutSession, error) {
	session := &domain.WorkoutSession{}
	var endedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.StudentID,
		&session.TrainerID,
		&session.WorkoutDayID,
		&session.DayIndex,
		&session.Status,
		&session.DurationSeconds,
		&session.StartedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}

	return session, nil
}
