// Package token issues and validates the signed claim sets that carry
// authentication state between requests.
//
// Three kinds of token exist: session (short-lived, carries role and
// resolved permissions), refresh (long-lived, deliberately carries only the
// subject and user id), and challenge (minutes-lived, minted after password
// verification when MFA is still outstanding). All three are HS256-signed
// JWTs over a flat claim map with a typ discriminator, so a token of one
// kind can never be presented as another.
//
// Validation collapses every failure (bad signature, malformed structure,
// expiry) into [ErrTokenInvalid]. Callers must treat all of them as
// "unauthenticated" and must not surface which one occurred.
package token
