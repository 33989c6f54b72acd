// Package apierr provides the structured error types shared across the
// harness: a single Error type carrying the failed operation and an error
// kind, sentinel errors for errors.Is checks, and APIError for HTTP
// responses rejected by status validation.
package apierr
