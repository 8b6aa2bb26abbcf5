package reliability

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrent write in progress for entity")

	ErrModelRequired      = errors.New("model is required")
	ErrForeignKeyRequired = errors.New("foreign key is required")
	ErrFieldRequired      = errors.New("field is required")
)

// ValidationError reports a rejected input value. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing resource. It matches ErrNotFound.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NotFound(resource string, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// ConflictError reports lock contention or a stale revision. It matches ErrConcurrencyConflict.
type ConflictError struct {
	Entity EntityKey
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrConcurrencyConflict, e.Entity, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

func Conflict(entity EntityKey, reason string) error {
	return &ConflictError{Entity: entity, Reason: reason}
}
