package apperrors

import (
	"errors"
	"net/http"
)

// Error type names reported to callers so they can branch without parsing messages.
const (
	TypeMissingRequiredInput  = "MissingRequiredInput"
	TypeUnsupportedOperation  = "UnsupportedOperation"
	TypeValidation            = "ValidationError"
	TypeWorkloadNameCollision = "WorkloadNameCollision"
	TypeTaskNotFound          = "TaskNotFound"
	TypeNotFound              = "NotFound"
	TypeConflict              = "Conflict"
	TypeInternal              = "InternalError"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// TypeName returns the stable name of the error kind.
// Specific workload kinds win over their generic class.
func TypeName(err error) string {
	switch {
	case errors.Is(err, ErrMissingRequiredInput):
		return TypeMissingRequiredInput
	case errors.Is(err, ErrUnsupportedOperation):
		return TypeUnsupportedOperation
	case errors.Is(err, ErrWorkloadNameCollision):
		return TypeWorkloadNameCollision
	case errors.Is(err, ErrTaskNotFound):
		return TypeTaskNotFound
	case errors.Is(err, ErrValidation):
		return TypeValidation
	case errors.Is(err, ErrNotFound):
		return TypeNotFound
	case errors.Is(err, ErrConflict):
		return TypeConflict
	default:
		return TypeInternal
	}
}
