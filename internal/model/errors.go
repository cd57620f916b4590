package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource or request is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrNotAllowed is returned when the actor is not permitted to run the action.
	ErrNotAllowed = errors.New("not allowed")
	// ErrNotEligible is returned when a contractor can't take work.
	ErrNotEligible = errors.New("not eligible")
	// ErrInvalidTransition is returned when the current status doesn't allow the action.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrConflict is returned by conditional writes when the stored state changed.
	ErrConflict = errors.New("conflict")
	// ErrGateway is returned when the payment gateway could not complete an operation.
	ErrGateway = errors.New("payment gateway failure")
)
