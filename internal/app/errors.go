package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Key     string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func inputError(format string, args ...any) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_INPUT", fmt.Sprintf(format, args...))
}

func unauthorizedError(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func forbiddenError(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message)
}

// logicError is a business-rule violation. The key is a stable machine
// identifier clients switch on for localization.
func logicError(message, key string) *DomainError {
	err := domainError(http.StatusConflict, "CONFLICT", message)
	err.Key = key
	return err
}
