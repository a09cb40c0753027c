package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/glebk/treino-bot/internal/domain"
)

// UserRepository implements domain.UserRepository on top of Database
type UserRepository struct {
	db *Database
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *Database) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, first_name, last_name, role, trainer_id, email, created_at, updated_at`

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, username, first_name, last_name, role, trainer_id, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if user.Role == "" {
		user.Role = domain.RoleStudent
	}

	now := time.Now()
	_, err := r.db.GetDB().ExecContext(ctx, r.db.rebind(query),
		user.ID,
		user.Username,
		user.FirstName,
		nullString(user.LastName),
		user.Role,
		user.TrainerID,
		nullString(user.Email),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.GetDB().QueryRowContext(ctx, r.db.rebind(query), id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// Update updates a user
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET username = ?, first_name = ?, last_name = ?, role = ?, trainer_id = ?, email = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	_, err := r.db.GetDB().ExecContext(ctx, r.db.rebind(query),
		user.Username,
		user.FirstName,
		nullString(user.LastName),
		user.Role,
		user.TrainerID,
		nullString(user.Email),
		now,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	user.UpdatedAt = now

	return nil
}

// ListStudents retrieves all students linked to a trainer
func (r *UserRepository) ListStudents(ctx context.Context, trainerID int64) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ? AND trainer_id = ? ORDER BY username`

	rows, err := r.db.GetDB().QueryContext(ctx, r.db.rebind(query), domain.RoleStudent, trainerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var lastName sql.NullString
	var email sql.NullString
	var trainerID sql.NullInt64

	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&lastName,
		&user.Role,
		&trainerID,
		&email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastName.Valid {
		user.LastName = lastName.String
	}
	if email.Valid {
		user.Email = email.String
	}
	if trainerID.Valid {
		id := trainerID.Int64
		user.TrainerID = &id
	}

	return user, nil
}

// Helper functions
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
