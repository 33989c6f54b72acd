// Package auth implements the authentication-strategy subsystem: pluggable
// ways of attaching credentials to an outgoing request, a name-indexed
// manager with a default-strategy policy, and the token state machine that
// drives proactive refresh of expiring credentials.
//
// Four strategies exist: Basic, APIKey, Bearer and OAuth2. Expiring
// strategies (Bearer, OAuth2) obtain and renew tokens through a pluggable
// TokenSource and optionally share them across parallel test processes via
// a TokenCache.
//
// A credential within its expiry buffer window is treated as invalid so it
// is renewed before use rather than expiring mid-flight.
package auth
