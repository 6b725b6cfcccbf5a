// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
//
// The generic classes (ErrValidation, ErrNotFound, ErrConflict, ErrInternal) drive
// HTTP status mapping. The workload-specific kinds form the closed set of decision
// points a workflow engine can branch on.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")

	ErrMissingRequiredInput  = errors.New("missing required input")
	ErrUnsupportedOperation  = errors.New("unsupported operation")
	ErrWorkloadNameCollision = errors.New("workload name collision")
	ErrTaskNotFound          = errors.New("task not found")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Kind     error  // Specific workload error kind, nil for generic errors
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "workload_name")
	Resource string // For not found/conflict (e.g., "task")
	Op       string // Operation that failed (e.g., "objstore.put")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel, the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 3)
	for _, err := range []error{e.Kind, e.Sentinel, e.Cause} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// MissingRequiredInput reports the first required key absent from a raw request.
func MissingRequiredInput(field string) error {
	return &Error{
		Sentinel: ErrValidation,
		Kind:     ErrMissingRequiredInput,
		Message:  fmt.Sprintf("missing required input: %s", field),
		Field:    field,
	}
}

// UnsupportedOperation reports an operation tag outside the recognised set.
func UnsupportedOperation(operation string) error {
	return &Error{
		Sentinel: ErrValidation,
		Kind:     ErrUnsupportedOperation,
		Message:  fmt.Sprintf("%s is not a supported operation", operation),
		Field:    "operation",
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// TaskNotFound reports a task id the workload API could not resolve.
// The lookup failure, whatever it was, is kept as the cause.
func TaskNotFound(taskID string, cause error) error {
	return &Error{
		Sentinel: ErrNotFound,
		Kind:     ErrTaskNotFound,
		Message:  fmt.Sprintf("task %s not found", taskID),
		Resource: "task",
		Cause:    cause,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// WorkloadNameCollision reports an ACTIVE workload already using name.
func WorkloadNameCollision(name string) error {
	return &Error{
		Sentinel: ErrConflict,
		Kind:     ErrWorkloadNameCollision,
		Message:  fmt.Sprintf("workload with name %s already exists", name),
		Resource: "workload",
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
