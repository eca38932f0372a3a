package interceptors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/salmonumbrella/apiconn/internal/connection"
)

// ErrorCode represents machine-readable error codes.
type ErrorCode string

const (
	// ErrBadRequest indicates a malformed request (HTTP 400).
	ErrBadRequest ErrorCode = "bad_request"
	// ErrUnauthorized indicates authentication is required or failed (HTTP 401).
	ErrUnauthorized ErrorCode = "unauthorized"
	// ErrForbidden indicates the caller lacks permission (HTTP 403).
	ErrForbidden ErrorCode = "forbidden"
	// ErrNotFound indicates the requested resource does not exist (HTTP 404).
	ErrNotFound ErrorCode = "not_found"
	// ErrConflict indicates a conflict with current state (HTTP 409).
	ErrConflict ErrorCode = "conflict"
	// ErrValidation indicates input validation failed (HTTP 422).
	ErrValidation ErrorCode = "validation_failed"
	// ErrRateLimited indicates too many requests (HTTP 429).
	ErrRateLimited ErrorCode = "rate_limited"
	// ErrServerError indicates an internal server error (HTTP 5xx).
	ErrServerError ErrorCode = "server_error"
	// ErrUnsupported indicates a request type the connection cannot send.
	ErrUnsupported ErrorCode = "unsupported_request_type"
	// ErrUnknown indicates an unknown or unclassified error.
	ErrUnknown ErrorCode = "unknown"
)

// IsRetryable returns true if errors with this code may succeed on retry.
func (c ErrorCode) IsRetryable() bool {
	switch c {
	case ErrRateLimited, ErrServerError:
		return true
	default:
		return false
	}
}

// Suggestion returns a human-readable suggestion for resolving this error.
func (c ErrorCode) Suggestion() string {
	switch c {
	case ErrUnauthorized:
		return "Run 'apiconn auth login' to store a fresh token"
	case ErrForbidden:
		return "Check the permissions of the configured identity"
	case ErrNotFound:
		return "Verify the request path"
	case ErrRateLimited:
		return "Wait a moment and retry"
	case ErrValidation, ErrBadRequest:
		return "Check the request parameters"
	case ErrConflict:
		return "The resource state may have changed; refresh and retry"
	case ErrServerError:
		return "The server encountered an error; try again later"
	case ErrUnsupported:
		return "Use GET, PATCH or POST"
	default:
		return ""
	}
}

// ErrorCodeFromStatus maps an HTTP status code to an ErrorCode.
func ErrorCodeFromStatus(statusCode int) ErrorCode {
	switch statusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if statusCode >= 500 && statusCode < 600 {
			return ErrServerError
		}
		return ErrUnknown
	}
}

// APIError represents an error response from the API.
type APIError struct {
	Method     connection.RequestType
	Path       string
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: API error (status %d): %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Code classifies the error by status.
func (e *APIError) Code() ErrorCode {
	return ErrorCodeFromStatus(e.StatusCode)
}

// IsNotFoundError checks if the error is an API 404.
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// StructuredError provides machine-readable error information.
type StructuredError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Retryable  bool           `json:"retryable"`
	Suggestion string         `json:"suggestion,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// MarshalJSON implements custom JSON marshaling.
func (e *StructuredError) MarshalJSON() ([]byte, error) {
	type Alias StructuredError
	return json.Marshal((*Alias)(e))
}

// NewStructuredError creates a StructuredError from an ErrorCode and message.
func NewStructuredError(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:       code,
		Message:    message,
		Retryable:  code.IsRetryable(),
		Suggestion: code.Suggestion(),
	}
}

// StructuredErrorFromError converts any error to a StructuredError.
func StructuredErrorFromError(err error) *StructuredError {
	if err == nil {
		return nil
	}

	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		out := NewStructuredError(apiErr.Code(), apiErr.Body)
		out.Context = map[string]any{"status_code": apiErr.StatusCode}
		if apiErr.Path != "" {
			out.Context["path"] = apiErr.Path
		}
		if apiErr.RequestID != "" {
			out.Context["request_id"] = apiErr.RequestID
		}
		return out
	}

	var typeErr *connection.UnsupportedRequestTypeError
	if errors.As(err, &typeErr) {
		out := NewStructuredError(ErrUnsupported, err.Error())
		out.Context = map[string]any{"type": string(typeErr.Type)}
		return out
	}

	return NewStructuredError(ErrUnknown, err.Error())
}
