// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"

	"github.com/Veraticus/the-alarm-must-ring/internal/model"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Rule and candidate errors.
	ErrInvalidRule = errors.New("invalid rule")
	ErrPastDue     = errors.New("alarm time is not in the future")

	// Platform errors.
	ErrExactAlarmDenied  = errors.New("exact alarm scheduling is not permitted")
	ErrSchedulerRejected = errors.New("scheduler rejected alarm")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports a rule or candidate that was dropped before scheduling.
type ValidationError struct {
	Err    error
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %v", e.Reason, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PlatformSchedulingError reports that the external scheduler refused or failed an operation.
type PlatformSchedulingError struct {
	Err       error
	Operation string
}

func (e *PlatformSchedulingError) Error() string {
	return fmt.Sprintf("platform %s failed: %v", e.Operation, e.Err)
}

func (e *PlatformSchedulingError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a store I/O failure for one item.
type PersistenceError struct {
	Err       error
	Operation string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CollisionError reports two logical alarms that derived the same request code.
type CollisionError struct {
	NewKey      string
	OrphanedKey string
	RequestCode int32
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("request code %d collision: %s replaces %s", e.RequestCode, e.NewKey, e.OrphanedKey)
}

// KindOf maps an error onto the failure taxonomy.
func KindOf(err error) model.FailureKind {
	var (
		validationErr *ValidationError
		platformErr   *PlatformSchedulingError
		collisionErr  *CollisionError
	)
	switch {
	case errors.As(err, &validationErr), errors.Is(err, ErrPastDue), errors.Is(err, ErrInvalidRule),
		errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrMissingConfig):
		return model.FailureValidation
	case errors.As(err, &platformErr), errors.Is(err, ErrExactAlarmDenied), errors.Is(err, ErrSchedulerRejected):
		return model.FailurePlatform
	case errors.As(err, &collisionErr):
		return model.FailureCollision
	default:
		return model.FailurePersist
	}
}
