package authcore

import (
	"errors"
	"time"

	"github.com/adminkit/authcore/internal/rate"
	"github.com/adminkit/authcore/password"
	"github.com/adminkit/authcore/token"
)

// Config tunes an Engine. Zero values are filled with defaults by
// Builder.Build; only the secrets are mandatory.
type Config struct {
	Token        token.Config
	Password     password.Config
	MFA          MFAConfig
	RateLimit    RateLimitConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
	Registration RegistrationConfig
}

// MFAConfig controls the TOTP second factor.
type MFAConfig struct {
	// SecretKey encrypts TOTP secrets at rest with AES-256-GCM. Must be
	// exactly 32 bytes.
	SecretKey []byte

	// Issuer appears in the otpauth provisioning URI.
	Issuer string

	Digits int
	Period time.Duration

	// Skew is the number of time steps accepted either side of now.
	Skew int

	BackupCodeCount  int
	BackupCodeLength int

	// ChallengeMaxAttempts revokes a pending challenge after this many
	// failed codes. Zero disables the per-challenge budget.
	ChallengeMaxAttempts int
}

// RateLimitConfig wires the Redis attempt limiter. Disabled skips all
// counting; the engine still works without Redis-backed throttling.
type RateLimitConfig struct {
	Enabled bool
	rate.Config
}

// AuditConfig controls the event dispatcher.
type AuditConfig struct {
	Enabled bool

	// BufferSize is the dispatcher queue depth. Events beyond it are
	// dropped and counted, never blocked on.
	BufferSize int
}

// MetricsConfig toggles counter collection.
type MetricsConfig struct {
	Enabled bool
}

// RegistrationConfig controls self-service signup.
type RegistrationConfig struct {
	// Open allows Register calls. When false only administrators create
	// accounts.
	Open bool

	// RequireEmailVerification gates login on a confirmed address.
	RequireEmailVerification bool

	VerificationTTL  time.Duration
	PasswordResetTTL time.Duration

	// DefaultRole is assigned to self-registered accounts.
	DefaultRole string
}

// Default TTLs and sizes applied by Builder.Build.
const (
	defaultSessionTTL   = 30 * time.Minute
	defaultRefreshTTL   = 7 * 24 * time.Hour
	defaultChallengeTTL = 5 * time.Minute

	defaultTOTPDigits = 6
	defaultTOTPPeriod = 30 * time.Second
	defaultTOTPSkew   = 1

	defaultBackupCodeCount  = 10
	defaultBackupCodeLength = 8

	defaultChallengeMaxAttempts = 5

	defaultMaxLoginAttempts = 5
	defaultLoginCooldown    = 15 * time.Minute
	defaultMaxMFAAttempts   = 5
	defaultMFACooldown      = 15 * time.Minute

	defaultAuditBufferSize = 256

	defaultVerificationTTL  = 24 * time.Hour
	defaultPasswordResetTTL = time.Hour

	defaultRoleName = "user"
)

func (c *Config) applyDefaults() {
	if c.Token.SessionTTL == 0 {
		c.Token.SessionTTL = defaultSessionTTL
	}
	if c.Token.RefreshTTL == 0 {
		c.Token.RefreshTTL = defaultRefreshTTL
	}
	if c.Token.ChallengeTTL == 0 {
		c.Token.ChallengeTTL = defaultChallengeTTL
	}
	if c.MFA.Digits == 0 {
		c.MFA.Digits = defaultTOTPDigits
	}
	if c.MFA.Period == 0 {
		c.MFA.Period = defaultTOTPPeriod
	}
	if c.MFA.Skew == 0 {
		c.MFA.Skew = defaultTOTPSkew
	}
	if c.MFA.BackupCodeCount == 0 {
		c.MFA.BackupCodeCount = defaultBackupCodeCount
	}
	if c.MFA.BackupCodeLength == 0 {
		c.MFA.BackupCodeLength = defaultBackupCodeLength
	}
	if c.MFA.ChallengeMaxAttempts == 0 {
		c.MFA.ChallengeMaxAttempts = defaultChallengeMaxAttempts
	}
	if c.RateLimit.MaxLoginAttempts == 0 {
		c.RateLimit.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if c.RateLimit.LoginCooldown == 0 {
		c.RateLimit.LoginCooldown = defaultLoginCooldown
	}
	if c.RateLimit.MaxMFAAttempts == 0 {
		c.RateLimit.MaxMFAAttempts = defaultMaxMFAAttempts
	}
	if c.RateLimit.MFACooldown == 0 {
		c.RateLimit.MFACooldown = defaultMFACooldown
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = defaultAuditBufferSize
	}
	if c.Registration.VerificationTTL == 0 {
		c.Registration.VerificationTTL = defaultVerificationTTL
	}
	if c.Registration.PasswordResetTTL == 0 {
		c.Registration.PasswordResetTTL = defaultPasswordResetTTL
	}
	if c.Registration.DefaultRole == "" {
		c.Registration.DefaultRole = defaultRoleName
	}
}

func (c *Config) validate() error {
	if len(c.MFA.SecretKey) != 32 {
		return errors.New("authcore: MFA.SecretKey must be exactly 32 bytes")
	}
	if c.MFA.Issuer == "" {
		return errors.New("authcore: MFA.Issuer is required")
	}
	if c.MFA.Digits < 6 || c.MFA.Digits > 8 {
		return errors.New("authcore: MFA.Digits must be between 6 and 8")
	}
	if c.MFA.Skew < 0 || c.MFA.Skew > 2 {
		return errors.New("authcore: MFA.Skew must be between 0 and 2")
	}
	return nil
}
