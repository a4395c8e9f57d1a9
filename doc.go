// Package authcore implements the authentication and access-control core
// for a multi-tenant admin application: credential login with adaptive
// password hashing, TOTP-based MFA with single-use backup codes, signed
// session, refresh and challenge tokens, and role-based permission
// resolution with category and system wildcards.
//
// The package is transport-agnostic. An Engine is built once at startup
// via the Builder, wired to a credential store (Postgres or in-memory)
// and a Redis client for rate limiting and one-time state, and then
// called from whatever HTTP or RPC layer the application uses.
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithRedis(redisClient).
//		Build()
//
// All failures are sentinel errors in this package, checked with
// errors.Is. Credential and MFA failures are deliberately coarse so that
// callers cannot leak account state to an attacker.
package authcore
