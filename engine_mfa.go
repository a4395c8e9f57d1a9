package authcore

import (
	"context"
	"encoding/base32"

	"github.com/adminkit/authcore/internal/metrics"
)

// SetupMFA proposes a new second factor for the user: a fresh secret and
// the provisioning URI to enroll an authenticator app. Nothing is
// persisted; the proposal only becomes active when EnableMFA proves the
// user can produce a code from it.
func (e *Engine) SetupMFA(ctx context.Context, userID string) (*MFASetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	return &MFASetup{
		Secret:       secretBase32,
		ProvisionURI: e.totp.ProvisionURI(secretBase32, u.Email),
	}, nil
}

// EnableMFA activates the proposed secret after verifying a live code
// against it, then mints the backup code set. The plaintext codes are
// returned exactly once; only their hashes are stored.
func (e *Engine) EnableMFA(ctx context.Context, userID, secretBase32, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	secret, err := enc.DecodeString(secretBase32)
	if err != nil {
		return nil, ErrMFACodeInvalid
	}
	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMFACodeInvalid
	}

	sealed, err := e.cipher.Seal(secret)
	if err != nil {
		return nil, err
	}
	codes, err := generateBackupCodes(e.config.MFA.BackupCodeCount, e.config.MFA.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	// Backup codes land before the enabled flag flips, so a failure
	// between the two writes leaves MFA off rather than enabled with no
	// recovery codes.
	if err := e.store.ReplaceBackupCodes(ctx, userID, hashBackupCodes(codes)); err != nil {
		return nil, err
	}
	if err := e.store.SetMFA(ctx, userID, true, sealed); err != nil {
		return nil, err
	}

	e.metricInc(metrics.MetricMFAEnabled)
	e.emitAudit(EventMFAEnabled, u.ID, u.Email, true, nil, nil)
	return codes, nil
}

// DisableMFA turns the second factor off after re-verifying the user's
// password, and discards the secret and all backup codes. The password,
// not a TOTP code, gates this: a hijacked session can read the
// authenticator but does not know the password. Disabling twice is an
// error, not a no-op.
func (e *Engine) DisableMFA(ctx context.Context, userID, password string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.MFAEnabled {
		return ErrMFANotEnabled
	}
	if !e.hasher.Verify(password, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := e.store.SetMFA(ctx, userID, false, ""); err != nil {
		return err
	}
	if err := e.store.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return err
	}

	e.metricInc(metrics.MetricMFADisabled)
	e.emitAudit(EventMFADisabled, u.ID, u.Email, true, nil, nil)
	return nil
}

// RegenerateBackupCodes replaces the whole backup code set after
// re-verifying the user's password. Spent and unspent codes alike are
// invalidated.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, password string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.MFAEnabled {
		return nil, ErrMFANotEnabled
	}
	if !e.hasher.Verify(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	codes, err := generateBackupCodes(e.config.MFA.BackupCodeCount, e.config.MFA.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceBackupCodes(ctx, userID, hashBackupCodes(codes)); err != nil {
		return nil, err
	}

	e.metricInc(metrics.MetricBackupCodesRegenerated)
	e.emitAudit(EventBackupRegenerated, u.ID, u.Email, true, nil, nil)
	return codes, nil
}
