package domain

import (
	"context"
	"time"
)

// Role distinguishes students from trainers
type Role string

const (
	RoleStudent Role = "aluno"
	RoleTrainer Role = "personal"
)

// User represents a bot user, either a student or a trainer
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	Role      Role      `json:"role"`
	TrainerID *int64    `json:"trainer_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the username, falling back to the first name
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// UserRepository defines the interface for user storage
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	Update(ctx context.Context, user *User) error
	ListStudents(ctx context.Context, trainerID int64) ([]*User, error)
}
