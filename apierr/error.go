package apierr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common harness error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrStrategyNotFound indicates the requested authentication strategy
	// is not registered with the manager.
	ErrStrategyNotFound = errors.New("authentication strategy not found")

	// ErrNoCredentials indicates a strategy has no credentials and no way
	// to obtain them.
	ErrNoCredentials = errors.New("no credentials available")

	// ErrTokenRefreshFailed indicates a token refresh attempt did not
	// produce a usable credential.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrRetriesExhausted indicates the request executor used up every
	// retry attempt without a completed response.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")

	// ErrMissingKey indicates a required configuration key is absent.
	ErrMissingKey = errors.New("configuration key not found")
)

// Error kinds categorize errors by their type.
const (
	// KindConfiguration represents errors reading or parsing configuration.
	KindConfiguration = "configuration"

	// KindAuthentication represents errors producing a valid credential.
	KindAuthentication = "authentication"

	// KindRequest represents errors executing an HTTP request.
	KindRequest = "request"

	// KindValidation represents errors validating a completed response.
	KindValidation = "validation"

	// KindNotFound represents errors where a named resource was not found.
	KindNotFound = "not_found"
)

// Error is a structured error type that wraps underlying errors with
// the operation that failed and the category of error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &apierr.Error{
//	    Op:   "auth.Manager.Get",
//	    Kind: apierr.KindNotFound,
//	    Err:  apierr.ErrStrategyNotFound,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "client.Executor.Execute").
	Op string

	// Kind categorizes the error (e.g., KindAuthentication).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	Context map[string]any
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("harness: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("harness: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("harness: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error, allowing comparison based on
// the underlying error or on another Error's kind and operation.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a copy of the error with the provided context merged in.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// NewAuthenticationError creates a new Error with KindAuthentication.
func NewAuthenticationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindAuthentication, Err: err}
}

// NewRequestError creates a new Error with KindRequest.
func NewRequestError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindRequest, Err: err}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNotFound, Err: err}
}
