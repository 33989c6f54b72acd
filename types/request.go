package types

import (
	"net/http"
	"net/url"
	"strings"
)

// Request is the outgoing request representation built by the client and
// decorated by authentication strategies before the transport sends it.
//
// A Request is a plain value holder: it performs no I/O itself. The
// executor clones the base request for every retry attempt so that one
// attempt's mutations (auth headers, per-attempt metadata) never leak into
// the next.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, PATCH, DELETE).
	Method string

	// BaseURL is the service root the endpoint is resolved against.
	BaseURL string

	// Endpoint is the path below BaseURL, with or without a leading slash.
	Endpoint string

	// Headers holds the request headers.
	Headers http.Header

	// Query holds the query parameters appended to the URL.
	Query url.Values

	// Body is the already-encoded request body, or nil.
	Body []byte

	// ID is the correlation ID attached to the request for log and trace
	// correlation across retry attempts.
	ID string
}

// NewRequest creates a request with initialized header and query maps.
func NewRequest(method, baseURL, endpoint string) *Request {
	return &Request{
		Method:   method,
		BaseURL:  baseURL,
		Endpoint: endpoint,
		Headers:  make(http.Header),
		Query:    make(url.Values),
	}
}

// Clone returns a deep copy of the request. Each retry attempt starts from
// a pristine clone of the caller's base request.
func (r *Request) Clone() *Request {
	c := &Request{
		Method:   r.Method,
		BaseURL:  r.BaseURL,
		Endpoint: r.Endpoint,
		Headers:  make(http.Header, len(r.Headers)),
		Query:    make(url.Values, len(r.Query)),
		ID:       r.ID,
	}

	for k, vs := range r.Headers {
		c.Headers[k] = append([]string(nil), vs...)
	}
	for k, vs := range r.Query {
		c.Query[k] = append([]string(nil), vs...)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}

	return c
}

// SetHeader sets a header, replacing any existing values.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(http.Header)
	}
	r.Headers.Set(name, value)
}

// Header returns the first value of the named header, or "".
func (r *Request) Header(name string) string {
	return r.Headers.Get(name)
}

// SetQuery sets a query parameter, replacing any existing values.
func (r *Request) SetQuery(name, value string) {
	if r.Query == nil {
		r.Query = make(url.Values)
	}
	r.Query.Set(name, value)
}

// URL joins BaseURL and Endpoint with exactly one separating slash and
// appends the encoded query string.
func (r *Request) URL() string {
	base := strings.TrimSuffix(r.BaseURL, "/")
	endpoint := r.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	u := base + endpoint
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u
}
