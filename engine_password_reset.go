package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/adminkit/authcore/internal/metrics"
	"github.com/adminkit/authcore/internal/stores"
)

// RequestPasswordReset issues a reset token for the address and hands it
// to the notifier. Unknown and inactive accounts report success without
// sending anything, so the endpoint leaks no account state.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !u.IsActive {
		return nil
	}

	tok, err := e.actions.Issue(ctx, stores.PurposePasswordReset, u.ID, e.config.Registration.PasswordResetTTL)
	if err != nil {
		return err
	}
	if err := e.notifier.PasswordResetEmail(ctx, u.Email, u.FullName, tok); err != nil {
		e.logger.Warn("sending password reset failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	e.metricInc(metrics.MetricPasswordResetRequested)
	e.emitAudit(EventPasswordResetSent, u.ID, u.Email, true, nil, nil)
	return nil
}

// ConfirmPasswordReset redeems a reset token and installs the new
// password. The new password is vetted before the token is redeemed, so
// a rejected password leaves the token unspent and retryable.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, tok, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	userID, err := e.actions.Consume(ctx, stores.PurposePasswordReset, tok)
	if err != nil {
		if errors.Is(err, stores.ErrActionTokenNotFound) {
			return ErrActionTokenInvalid
		}
		return err
	}
	u, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := e.store.UpdateUser(ctx, u); err != nil {
		return err
	}

	// A completed reset clears any lockout so the user can log in with
	// the new password right away.
	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, u.Email, ""); err != nil {
			e.logger.Warn("rate limiter unavailable", zap.Error(err))
		}
	}

	e.metricInc(metrics.MetricPasswordResetConfirmed)
	e.emitAudit(EventPasswordResetDone, u.ID, u.Email, true, nil, nil)
	return nil
}

// ChangePassword rotates the password for an authenticated user after
// verifying the current one.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !e.hasher.Verify(current, u.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := e.hasher.Hash(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return e.store.UpdateUser(ctx, u)
}
