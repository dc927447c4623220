package protocol

import (
	"errors"
	"fmt"

	"github.com/danmuck/telectl/internal/protocol/schema"
)

var (
	ErrSchemaMismatch = errors.New("protocol: payload size does not match message type")
	ErrSize           = errors.New("protocol: destination buffer too small")
	ErrTruncated      = errors.New("protocol: truncated data")
	ErrValidation     = errors.New("protocol: validation failed")
	ErrHandler        = errors.New("protocol: handler failed")
	ErrNullInput      = errors.New("protocol: nil input")
)

// ValidationError reports the first consistency check a packet failed.
type ValidationError struct {
	Check  string
	Reason string
	Cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("protocol: validation failed: %s: %s", e.Check, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Cause}
}

// HandlerError wraps a failure reported by a local handler or the transmit
// callback.
type HandlerError struct {
	Endpoint schema.Endpoint
	Remote   bool
	Err      error
}

func (e *HandlerError) Error() string {
	if e.Remote {
		return fmt.Sprintf("protocol: transmit failed at endpoint %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("protocol: handler failed at endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *HandlerError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrHandler}
	}
	return []error{ErrHandler, e.Err}
}
