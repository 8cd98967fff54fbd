// Package errors provides explicit, human-readable error types for tasked.
// Every error carries a Reason and, where the caller can act on it, a Suggestion.
//
// Validation, authorization and lookup failures are distinct types so the
// gateway and the CLI can translate them without string matching.
package errors

import (
	"errors"
	"fmt"
)

// TaskedError is the base error type for all tasked errors.
type TaskedError struct {
	Code       ErrorCode
	Message    string
	Reason     string
	Suggestion string
	Cause      error
}

// ErrorCode represents the category of error for exit code mapping.
type ErrorCode int

const (
	CodeValidation ErrorCode = 1
	CodeAuth       ErrorCode = 2
	CodeForbidden  ErrorCode = 3
	CodeNotFound   ErrorCode = 4
	CodeInternal   ErrorCode = 5
)

func (e *TaskedError) Error() string {
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s\nReason: %s", msg, e.Reason)
	}
	if e.Suggestion != "" {
		msg = fmt.Sprintf("%s\nSuggestion: %s", msg, e.Suggestion)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s\nCaused by: %v", msg, e.Cause)
	}
	return msg
}

func (e *TaskedError) Unwrap() error {
	return e.Cause
}

// ErrValidation is returned when input is malformed: a missing required field,
// an unknown status value, a field that is too long.
type ErrValidation struct {
	TaskedError
	Field string

	// Detail is the reason without the field prefix.
	Detail string
}

// NewValidation creates a new ErrValidation for a single field.
func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		TaskedError: TaskedError{
			Code:    CodeValidation,
			Message: "invalid input",
			Reason:  fmt.Sprintf("field '%s': %s", field, reason),
		},
		Field:  field,
		Detail: reason,
	}
}

// ErrAuthFailed is returned when authentication fails.
type ErrAuthFailed struct {
	TaskedError
}

// NewAuthFailed creates a new ErrAuthFailed.
func NewAuthFailed(reason string) *ErrAuthFailed {
	return &ErrAuthFailed{
		TaskedError: TaskedError{
			Code:       CodeAuth,
			Message:    "authentication failed",
			Reason:     reason,
			Suggestion: "authenticate with 'tasked auth login'",
		},
	}
}

// NewAuthExpired is returned when the auth token has expired or was revoked.
func NewAuthExpired() *ErrAuthFailed {
	return &ErrAuthFailed{
		TaskedError: TaskedError{
			Code:       CodeAuth,
			Message:    "authentication expired",
			Reason:     "token has expired or was revoked",
			Suggestion: "re-authenticate with 'tasked auth login'",
		},
	}
}

// ErrAccessDenied is returned when the task access policy refuses an operation.
// Denial is the machine-readable reason code (NOT_BOSS, NOT_OWNER, ...).
type ErrAccessDenied struct {
	TaskedError
	Operation string
	Denial    string
}

// NewAccessDenied creates a new ErrAccessDenied.
func NewAccessDenied(operation, denial, reason string) *ErrAccessDenied {
	return &ErrAccessDenied{
		TaskedError: TaskedError{
			Code:    CodeForbidden,
			Message: fmt.Sprintf("%s not permitted", operation),
			Reason:  reason,
		},
		Operation: operation,
		Denial:    denial,
	}
}

// ErrNotFound is returned when a referenced task or user does not exist.
type ErrNotFound struct {
	TaskedError
	Resource string
	ID       string
}

// NewNotFound creates a new ErrNotFound.
func NewNotFound(resource, id string) *ErrNotFound {
	return &ErrNotFound{
		TaskedError: TaskedError{
			Code:    CodeNotFound,
			Message: fmt.Sprintf("%s not found: %s", resource, id),
			Reason:  fmt.Sprintf("no %s exists with this id", resource),
		},
		Resource: resource,
		ID:       id,
	}
}

// ErrAlreadyExists is returned when a unique field is already taken.
type ErrAlreadyExists struct {
	TaskedError
	Resource string
	Field    string
}

// NewAlreadyExists creates a new ErrAlreadyExists.
func NewAlreadyExists(resource, field string) *ErrAlreadyExists {
	return &ErrAlreadyExists{
		TaskedError: TaskedError{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("%s already exists", resource),
			Reason:     fmt.Sprintf("field '%s' has already been taken", field),
			Suggestion: fmt.Sprintf("choose a different %s", field),
		},
		Resource: resource,
		Field:    field,
	}
}

// ErrDatabaseUnavailable is returned when the repository cannot be reached.
type ErrDatabaseUnavailable struct {
	TaskedError
}

// NewDatabaseUnavailable creates a new ErrDatabaseUnavailable.
func NewDatabaseUnavailable(reason string) *ErrDatabaseUnavailable {
	return &ErrDatabaseUnavailable{
		TaskedError: TaskedError{
			Code:       CodeInternal,
			Message:    "database unavailable",
			Reason:     reason,
			Suggestion: "check database connectivity and configuration",
		},
	}
}

// ErrMigrationFailed is returned when a schema migration cannot be applied.
type ErrMigrationFailed struct {
	TaskedError
	Migration string
}

// NewMigrationFailed creates a new ErrMigrationFailed.
func NewMigrationFailed(migration string, cause error) *ErrMigrationFailed {
	return &ErrMigrationFailed{
		TaskedError: TaskedError{
			Code:       CodeInternal,
			Message:    fmt.Sprintf("migration failed: %s", migration),
			Reason:     "the migration could not be applied",
			Suggestion: "inspect the schema_migrations table and database logs",
			Cause:      cause,
		},
		Migration: migration,
	}
}

// ErrBootstrap is returned when the administrative seed cannot be applied.
type ErrBootstrap struct {
	TaskedError
}

// NewBootstrapError creates a new ErrBootstrap.
func NewBootstrapError(message, reason, suggestion string) *ErrBootstrap {
	return &ErrBootstrap{
		TaskedError: TaskedError{
			Code:       CodeValidation,
			Message:    message,
			Reason:     reason,
			Suggestion: suggestion,
		},
	}
}

// ErrGatewayUnavailable is returned by the CLI when the gateway cannot be reached.
type ErrGatewayUnavailable struct {
	TaskedError
	Endpoint string
}

// NewGatewayUnavailable creates a new ErrGatewayUnavailable.
func NewGatewayUnavailable(endpoint, reason string) *ErrGatewayUnavailable {
	return &ErrGatewayUnavailable{
		TaskedError: TaskedError{
			Code:       CodeInternal,
			Message:    "gateway unavailable",
			Reason:     reason,
			Suggestion: "check the endpoint with 'tasked doctor'",
		},
		Endpoint: endpoint,
	}
}

// CodeOf returns the ErrorCode carried by err, or CodeInternal when err is not
// a tasked error.
func CodeOf(err error) ErrorCode {
	var (
		validation *ErrValidation
		auth       *ErrAuthFailed
		denied     *ErrAccessDenied
		notFound   *ErrNotFound
		exists     *ErrAlreadyExists
		bootstrap  *ErrBootstrap
	)
	switch {
	case errors.As(err, &validation):
		return validation.Code
	case errors.As(err, &auth):
		return auth.Code
	case errors.As(err, &denied):
		return denied.Code
	case errors.As(err, &notFound):
		return notFound.Code
	case errors.As(err, &exists):
		return exists.Code
	case errors.As(err, &bootstrap):
		return bootstrap.Code
	default:
		return CodeInternal
	}
}
