package connection

import (
	"errors"
	"fmt"
)

// ErrUnsupportedRequestType is matched by errors.Is for any request whose
// type the Connection cannot dispatch.
var ErrUnsupportedRequestType = errors.New("unsupported request type")

// UnsupportedRequestTypeError reports the offending request type.
type UnsupportedRequestTypeError struct {
	Type RequestType
}

func (e *UnsupportedRequestTypeError) Error() string {
	return fmt.Sprintf("%s %q (supported: GET, PATCH, POST)", ErrUnsupportedRequestType, string(e.Type))
}

func (e *UnsupportedRequestTypeError) Unwrap() error {
	return ErrUnsupportedRequestType
}

// IsUnsupportedRequestType checks if the error is an unsupported request type error.
func IsUnsupportedRequestType(err error) bool {
	return errors.Is(err, ErrUnsupportedRequestType)
}
