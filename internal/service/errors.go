package service

import "errors"

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrNotTrainer            = errors.New("user is not a trainer")
	ErrNoTrainer             = errors.New("student has no trainer")
	ErrNotYourStudent        = errors.New("student belongs to another trainer")
	ErrDayNotFound           = errors.New("workout day not found")
	ErrInvalidDay            = errors.New("workout day index must be positive and the name must not be empty")
	ErrSessionEndedElsewhere = errors.New("workout session was already ended elsewhere")
)
