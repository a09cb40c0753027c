package tracker

import "errors"

var (
	ErrMissingIdentifiers   = errors.New("student, trainer and workout day are required")
	ErrNoActiveSession      = errors.New("no active workout session")
	ErrSessionAlreadyActive = errors.New("a workout session is already active")
)
