// Package types defines the wire-neutral request and response
// representations shared by the authentication strategies and the request
// executor. Keeping them here lets the auth package decorate outgoing
// requests without depending on the HTTP client package.
package types
