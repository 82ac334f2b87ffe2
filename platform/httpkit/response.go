// Package httpkit provides HTTP response utilities.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"errors"
	"net/http"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error     string      `json:"error"`
	Code      string      `json:"code,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Error sends an error response with the given status code and message.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// OK sends a 200 OK response with the given payload.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// HandleError maps domain errors to HTTP responses.
// A typed *apperr.Error anywhere in the chain decides the status code.
// Anything else is reported as 500 without leaking its message.
// Returns true if an error was handled, false otherwise.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	_ = c.Error(err)
	domainErr := asDomainError(err)
	if domainErr.Retryable() {
		c.Header("Retry-After", "1")
	}
	c.JSON(domainErr.HTTPStatus(), errorBody(domainErr))
	return true
}

// abortWithError stops the handler chain with a typed error response.
func abortWithError(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(err.HTTPStatus(), errorBody(err))
}

func asDomainError(err error) *apperr.Error {
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return apperr.Internal("internal error")
}

func errorBody(err *apperr.Error) ErrorResponse {
	return ErrorResponse{
		Error:     err.Message,
		Code:      err.Kind.String(),
		Retryable: err.Retryable(),
		Details:   err.Details,
	}
}
