package service

import (
	"errors"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrDuplicate         = errors.New("email already registered")
	ErrNotFound          = errors.New("user not found")
	ErrAccountInactive   = errors.New("account not active")
	ErrInvalidCredential = errors.New("invalid password")
)

// ValidationError is a user-correctable input problem. Fields lists the
// missing required fields, when that is the cause.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
