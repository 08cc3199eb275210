package domain

import "errors"

// Sentinel errors for the application. Handlers map these onto HTTP statuses
// with errors.Is, so lower layers must wrap rather than replace them.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrEditWindowExpired = errors.New("edit window expired")
	ErrUnavailable       = errors.New("backend unavailable")
)
