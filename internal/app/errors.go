package app

import "errors"

// Sentinel errors for the service layer. Handlers map these onto HTTP
// status codes, everything else becomes a 500.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("already exists")
)
