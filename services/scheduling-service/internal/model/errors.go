package model

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the kind of record that was missing.
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type ConflictKind int

const (
	// HardConflict cannot be bypassed: the provider is unavailable or busy.
	HardConflict ConflictKind = iota + 1
	// SoftConflict is a requester-side overlap the caller may override.
	SoftConflict
)

func (k ConflictKind) String() string {
	switch k {
	case HardConflict:
		return "hard"
	case SoftConflict:
		return "soft"
	}
	return "unknown"
}

type ConflictError struct {
	Kind    ConflictKind
	Message string
	// ProviderName is the provider of the conflicting appointment, when known.
	ProviderName string
}

func (e *ConflictError) Error() string {
	return e.Kind.String() + " conflict: " + e.Message
}

func (e *ConflictError) Overridable() bool { return e.Kind == SoftConflict }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsHardConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c) && c.Kind == HardConflict
}

func IsSoftConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c) && c.Kind == SoftConflict
}
