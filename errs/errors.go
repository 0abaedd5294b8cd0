package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// TypeNotFound is returned when a referenced user, post or record does not exist
	TypeNotFound ErrorType = "NOT_FOUND"
	// TypeInvalidOperation is returned for malformed input or forbidden actions
	TypeInvalidOperation ErrorType = "INVALID_OPERATION"
	// TypeConflict is returned when a write would break a uniqueness invariant
	TypeConflict ErrorType = "CONFLICT"
	// TypeUpstreamUnavailable is returned when the row or object store failed
	TypeUpstreamUnavailable ErrorType = "UPSTREAM_UNAVAILABLE"
	// TypePartialFailure is returned when a multi-step operation stopped halfway
	TypePartialFailure ErrorType = "PARTIAL_FAILURE"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// typedError is satisfied by BaseError and every type embedding it
type typedError interface {
	error
	Kind() ErrorType
}

func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// ErrNotFound carries the kind and identity of the missing row
type ErrNotFound struct {
	*BaseError
	Resource string
	ID       string
}

func NotFound(resource, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(TypeNotFound, fmt.Sprintf("%s not found: %s", resource, id), nil),
		Resource:  resource,
		ID:        id,
	}
}

func InvalidOperation(format string, args ...any) *BaseError {
	return NewBaseError(TypeInvalidOperation, fmt.Sprintf(format, args...), nil)
}

func Conflict(message string, err error) *BaseError {
	return NewBaseError(TypeConflict, message, err)
}

func Upstream(operation string, err error) *BaseError {
	return NewBaseError(TypeUpstreamUnavailable, operation, err)
}

// ErrPartialFailure is surfaced even when the compensating action succeeded,
// so callers can decide whether to retry the whole sequence.
type ErrPartialFailure struct {
	*BaseError
	Step            string
	Compensated     bool
	CompensationErr error
}

func NewPartialFailure(step string, cause error, compensationErr error) *ErrPartialFailure {
	message := fmt.Sprintf("%s failed, compensation applied", step)
	if compensationErr != nil {
		message = fmt.Sprintf("%s failed, compensation failed: %v", step, compensationErr)
	}
	return &ErrPartialFailure{
		BaseError:       NewBaseError(TypePartialFailure, message, cause),
		Step:            step,
		Compensated:     compensationErr == nil,
		CompensationErr: compensationErr,
	}
}

// IsType checks if any error in the chain carries the given type
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var typed typedError
		if !errors.As(err, &typed) {
			return false
		}
		if typed.Kind() == errType {
			return true
		}
		err = errors.Unwrap(typed)
	}
	return false
}

// IsRetryable reports whether a caller may repeat the operation as is.
// Invariant violations and malformed input are never retryable.
func IsRetryable(err error) bool {
	return IsType(err, TypeUpstreamUnavailable)
}

func HTTPStatus(err error) int {
	var typed typedError
	if !errors.As(err, &typed) {
		return http.StatusInternalServerError
	}
	switch typed.Kind() {
	case TypeNotFound:
		return http.StatusNotFound
	case TypeInvalidOperation:
		return http.StatusBadRequest
	case TypeConflict:
		return http.StatusConflict
	case TypeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case TypePartialFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
