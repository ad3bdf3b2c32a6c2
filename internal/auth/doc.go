// Package auth provides optional bearer-token authentication between graphrag
// clients and the relay.
//
// Both sides share an HS256 secret. The client wraps its HTTP transport in a
// BearerTransport, which mints a short-lived token (sub = client name,
// aud = "graphrag-relay") for every request. The relay wraps its handler in
// HTTPAuthMiddleware, which verifies the token and stores the subject in the
// request context (SubjectFromContext).
//
// Errors:
//
//   - ErrInvalidToken: bad signature, wrong audience, malformed token
//   - ErrExpiredToken: exp in the past
//   - ErrMissingClaim: no subject
package auth
