package types

import (
	"net/http"
	"time"
)

// Response is the completed HTTP exchange handed back by the transport.
// The body is fully read and buffered; validation and extraction helpers
// operate on the buffered bytes.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Status is the status line as reported by the server.
	Status string

	// Headers holds the response headers.
	Headers http.Header

	// Body is the fully-read response body.
	Body []byte

	// RequestID is the correlation ID of the request that produced this
	// response.
	RequestID string

	// Elapsed is the wall-clock duration of the exchange.
	Elapsed time.Duration
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsClientError reports whether the status code is in the 4xx range.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// IsServerError reports whether the status code is in the 5xx range.
func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// Header returns the first value of the named header, or "".
func (r *Response) Header(name string) string {
	return r.Headers.Get(name)
}
