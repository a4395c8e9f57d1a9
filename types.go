package authcore

import (
	"context"
	"time"

	"github.com/adminkit/authcore/permission"
)

// User is an account record as held by the credential store. PasswordHash
// and MFASecretEnc never leave the engine.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	FullName      string
	RoleID        string
	IsActive      bool
	IsSuperuser   bool
	EmailVerified bool
	MFAEnabled    bool
	MFASecretEnc  string
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Role groups permissions under a name. System roles are seeded at
// install time and cannot be modified or deleted.
type Role struct {
	ID          string
	Name        string
	DisplayName string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a catalog entry. Name is always category.action, with
// "*" accepted for the action part of wildcard grants.
type Permission = permission.Definition

// Store is the persistence contract the engine runs against. Postgres
// and in-memory implementations live under store/. Implementations map
// uniqueness violations to ErrDuplicateIdentity and missing rows to the
// matching not-found sentinel.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, u *User) error
	UserByID(ctx context.Context, id string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	CountUsersWithRole(ctx context.Context, roleID string) (int, error)

	// MFA state. SetMFA writes the enabled flag and the encrypted secret
	// in one step; ReplaceBackupCodes swaps the full hash set.
	SetMFA(ctx context.Context, userID string, enabled bool, secretEnc string) error
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error

	// ConsumeBackupCode deletes the hash for the user if it is present
	// and reports whether this call removed it. Concurrent redemptions
	// of the same code must resolve to exactly one winner.
	ConsumeBackupCode(ctx context.Context, userID, hash string) (bool, error)

	// Roles and permissions.
	CreateRole(ctx context.Context, r *Role) error
	RoleByID(ctx context.Context, id string) (*Role, error)
	RoleByName(ctx context.Context, name string) (*Role, error)
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]Role, error)
	SetRolePermissions(ctx context.Context, roleID string, names []string) error
	RolePermissions(ctx context.Context, roleID string) ([]string, error)
	EnsurePermission(ctx context.Context, p Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// Notifier delivers out-of-band messages raised by the engine. The
// default is a no-op; applications plug in mail delivery.
type Notifier interface {
	VerificationEmail(ctx context.Context, email, fullName, token string) error
	PasswordResetEmail(ctx context.Context, email, fullName, token string) error
}

type noopNotifier struct{}

func (noopNotifier) VerificationEmail(context.Context, string, string, string) error { return nil }
func (noopNotifier) PasswordResetEmail(context.Context, string, string, string) error {
	return nil
}

// SessionPair is the result of a fully authenticated login or refresh.
type SessionPair struct {
	SessionToken string
	RefreshToken string
	ExpiresAt    time.Time
}

// MFAChallenge is returned when credentials verify but a second factor
// is still required. The token is only redeemable once.
type MFAChallenge struct {
	ChallengeToken string
	ExpiresAt      time.Time
}

// LoginResult is the outcome of Login. Exactly one of Session or
// Challenge is set, discriminated by MFARequired.
type LoginResult struct {
	MFARequired bool
	Session     *SessionPair
	Challenge   *MFAChallenge
}

// MFASetup holds a proposed, not yet active, second factor. Nothing is
// persisted until the user proves possession via EnableMFA.
type MFASetup struct {
	Secret       string
	ProvisionURI string
}

// Identity is a validated session presented back to the caller after
// Authenticate. Permissions reflect the token, not live store state.
// Authenticated is false only on the zero Identity returned by
// AuthenticateOptional for anonymous callers.
type Identity struct {
	Authenticated bool
	UserID        string
	Email         string
	Role          string
	Permissions   []string
	MFAVerified   bool
}
