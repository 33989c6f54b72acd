package apierr

import "fmt"

// APIError reports a completed HTTP exchange whose status code fell outside
// the accepted set. It carries the status code and the raw body so the test
// author can diagnose the failure without re-issuing the request.
type APIError struct {
	// StatusCode is the HTTP status code of the rejected response.
	StatusCode int

	// Status is the status line as reported by the server.
	Status string

	// Body is the raw response body.
	Body []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, string(e.Body))
}

// Is matches two APIErrors with the same status code, so tests can write
// errors.Is(err, &apierr.APIError{StatusCode: 404}).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}
