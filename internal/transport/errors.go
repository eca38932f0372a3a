package transport

import (
	"errors"
	"fmt"
)

// RequestError is returned when no HTTP response could be obtained.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: request failed: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRequestError checks if the error is a transport-level request failure.
func IsRequestError(err error) bool {
	var e *RequestError
	return errors.As(err, &e)
}
