package domain

import "errors"

// Sentinel errors shared by every layer. Callers wrap them with context and
// transports translate them with errors.Is.
var (
	// ErrNotFound is returned when a flight, booking or passenger does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when a flight has no seats left.
	ErrUnavailable = errors.New("no seats available")

	// ErrConflict is returned for duplicate references, e-mails or seats.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when a booking status change is not
	// allowed. It matches ErrConflict as well.
	ErrInvalidTransition = &transitionError{}

	ErrInvalidInput = errors.New("invalid input")

	ErrInvalidCredentials = errors.New("invalid email or password")
)

type transitionError struct{}

func (*transitionError) Error() string { return "invalid booking status transition" }

func (*transitionError) Is(target error) bool { return target == ErrConflict }
