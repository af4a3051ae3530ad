package services

import (
	"errors"

	"taskflow/backend/internal/auth"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidTask        = errors.New("invalid task")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidStatus      = errors.New("invalid task status")
	ErrInvalidFilter      = errors.New("unknown task filter")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrProfileNotFound    = auth.ErrProfileNotFound
)
