package errors

import (
	"net/http"

	"roamly/internal/service"
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps lifecycle errors to HTTP errors. Anything unmapped is
// a 500 with a generic message; internal detail never crosses the boundary.
func MapErrorToHTTP(err error) *HTTPError {
	switch err {
	case service.ErrPasswordMismatch:
		return NewHTTPError(http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case service.ErrInvalidCredentials:
		return NewHTTPError(http.StatusUnauthorized, err.Error(), "INVALID_CREDENTIALS")
	case service.ErrEmailTaken:
		return NewHTTPError(http.StatusConflict, err.Error(), "EMAIL_TAKEN")
	case service.ErrUserNotFound:
		return NewHTTPError(http.StatusNotFound, err.Error(), "NOT_FOUND")
	case service.ErrResetTokenInvalid:
		return NewHTTPError(http.StatusBadRequest, err.Error(), "INVALID_OR_EXPIRED_TOKEN")
	case service.ErrResetInProgress:
		return NewHTTPError(http.StatusTooManyRequests, err.Error(), "RESET_IN_PROGRESS")
	case service.ErrEmailDelivery:
		return NewHTTPError(http.StatusInternalServerError, err.Error(), "DELIVERY_FAILURE")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
