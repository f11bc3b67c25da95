package models

import "errors"

// Custom errors
var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicateKey    = errors.New("duplicate key violation")
	ErrInvalidID       = errors.New("invalid ID format")
	ErrSessionNotFound = errors.New("session not found")
	ErrSchemeNotFound  = errors.New("point scheme not found")
)
