package app

import (
	"errors"
	"fmt"
	"net/http"

	"finished/api/internal/validation"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// validationError converts validator field errors into a 422 with the failing
// fields as details. Other errors pass through.
func validationError(err error) error {
	var fields validation.FieldErrors
	if errors.As(err, &fields) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", map[string]string(fields))
	}
	return err
}
