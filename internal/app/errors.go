package app

import (
	"errors"
	"fmt"
	"net/http"

	"roomsync/api/internal/access"
	"roomsync/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// toDomainError maps core errors onto the HTTP boundary. Unknown errors are
// treated as internal; the detailed message stays in the server log only.
func toDomainError(err error) *DomainError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "Room not found"}
	case errors.Is(err, access.ErrForbidden):
		return &DomainError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "Forbidden"}
	case errors.Is(err, access.ErrInvalidOperation):
		return &DomainError{Status: http.StatusBadRequest, Code: "INVALID_OPERATION", Message: err.Error()}
	case errors.Is(err, store.ErrAlreadyExists):
		return &DomainError{Status: http.StatusConflict, Code: "ALREADY_EXISTS", Message: "Room already exists"}
	case errors.Is(err, store.ErrUnavailable):
		return &DomainError{Status: http.StatusServiceUnavailable, Code: "STORE_UNAVAILABLE", Message: "Storage backend unavailable"}
	default:
		return &DomainError{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: "Internal error"}
	}
}
