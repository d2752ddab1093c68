package portal_errors

import "errors"

// Common errors
var (
	ErrValidation        = errors.New("invalid input")
	ErrNotAssigned       = errors.New("no assigned doctor/patient relationship")
	ErrInvalidTransition = errors.New("invalid delivery status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrConflict          = errors.New("conflict")
	ErrUnavailable       = errors.New("temporarily unavailable")
	ErrViewClosed        = errors.New("conversation view closed")
)
