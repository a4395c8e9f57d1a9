package authcore

import (
	"errors"

	"github.com/adminkit/authcore/internal/rate"
	"github.com/adminkit/authcore/token"
)

// Sentinel errors returned by Engine operations. Check with errors.Is;
// the concrete messages are not part of the API.
var (
	// ErrInvalidCredentials covers every credential failure during login:
	// unknown email, wrong password, or an account state the caller is
	// not allowed to learn about. Callers must surface it verbatim.
	ErrInvalidCredentials = errors.New("authcore: invalid credentials")

	// ErrAccountInactive is returned when credentials verify but the
	// account has been deactivated by an administrator.
	ErrAccountInactive = errors.New("authcore: account inactive")

	// ErrEmailUnverified is returned when credentials verify but the
	// registration email was never confirmed.
	ErrEmailUnverified = errors.New("authcore: email not verified")

	// ErrMFACodeInvalid covers every second-factor failure: wrong TOTP
	// code, stale code outside the accepted window, or an unknown or
	// already-spent backup code.
	ErrMFACodeInvalid = errors.New("authcore: mfa code invalid")

	// ErrMFAChallengeExpired is returned when a challenge token is valid
	// but its server-side record is gone: redeemed, expired, or revoked
	// after too many failed attempts.
	ErrMFAChallengeExpired = errors.New("authcore: mfa challenge expired")

	// ErrMFAAlreadyEnabled is returned by EnableMFA for a user whose
	// second factor is already active.
	ErrMFAAlreadyEnabled = errors.New("authcore: mfa already enabled")

	// ErrMFANotEnabled is returned by MFA management operations when the
	// user has no active second factor.
	ErrMFANotEnabled = errors.New("authcore: mfa not enabled")

	// ErrPermissionDenied is returned when a permission check fails.
	ErrPermissionDenied = errors.New("authcore: permission denied")

	// ErrUserNotFound is returned by administrative lookups. Login never
	// returns it.
	ErrUserNotFound = errors.New("authcore: user not found")

	// ErrRoleNotFound is returned when a role lookup misses.
	ErrRoleNotFound = errors.New("authcore: role not found")

	// ErrPermissionNotFound is returned when a named permission does not
	// exist in the catalog.
	ErrPermissionNotFound = errors.New("authcore: permission not found")

	// ErrDuplicateIdentity is returned when a create or update would
	// reuse an email or role name that already exists.
	ErrDuplicateIdentity = errors.New("authcore: identity already exists")

	// ErrSystemRoleImmutable is returned when a caller tries to modify or
	// delete one of the seeded system roles.
	ErrSystemRoleImmutable = errors.New("authcore: system role is immutable")

	// ErrStateConflict is returned when an operation is valid in form but
	// conflicts with current state, such as deleting a role that still
	// has users assigned.
	ErrStateConflict = errors.New("authcore: state conflict")

	// ErrActionTokenInvalid is returned when an email-verification or
	// password-reset token is unknown, expired, or already used.
	ErrActionTokenInvalid = errors.New("authcore: action token invalid")

	// ErrEngineClosed is returned from calls made after Close.
	ErrEngineClosed = errors.New("authcore: engine closed")
)

// Re-exported sentinels from subpackages so callers only import authcore.
var (
	// ErrTokenInvalid covers every token validation failure: bad
	// signature, expiry, wrong kind, malformed input.
	ErrTokenInvalid = token.ErrTokenInvalid

	// ErrRateLimited is returned when the login or MFA attempt budget
	// for an identifier or address is exhausted.
	ErrRateLimited = rate.ErrRateLimited
)
