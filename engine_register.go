package authcore

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/adminkit/authcore/internal/metrics"
	"github.com/adminkit/authcore/internal/stores"
)

// RegisterInput carries a self-service signup.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// Register creates an account in the default role and sends the
// verification message. Reusing a known email fails with
// ErrDuplicateIdentity; callers presenting registration to anonymous
// users should translate it to a neutral response.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.config.Registration.Open {
		return nil, ErrPermissionDenied
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	roleID := ""
	if role, err := e.store.RoleByName(ctx, e.config.Registration.DefaultRole); err == nil {
		roleID = role.ID
	}

	u := &User{
		Email:         email,
		PasswordHash:  hash,
		FullName:      in.FullName,
		RoleID:        roleID,
		IsActive:      true,
		EmailVerified: !e.config.Registration.RequireEmailVerification,
	}
	if err := e.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			e.metricInc(metrics.MetricRegisterDuplicate)
		}
		return nil, err
	}

	e.metricInc(metrics.MetricRegisterSuccess)
	e.emitAudit(EventRegistered, u.ID, u.Email, true, nil, nil)

	if e.config.Registration.RequireEmailVerification {
		if err := e.sendVerification(ctx, u); err != nil {
			e.logger.Warn("sending verification failed", zap.String("user_id", u.ID), zap.Error(err))
		}
	}
	return u, nil
}

func (e *Engine) sendVerification(ctx context.Context, u *User) error {
	tok, err := e.actions.Issue(ctx, stores.PurposeVerifyEmail, u.ID, e.config.Registration.VerificationTTL)
	if err != nil {
		return err
	}
	return e.notifier.VerificationEmail(ctx, u.Email, u.FullName, tok)
}

// VerifyEmail redeems a verification token and marks the address
// confirmed. Tokens are single-use; a second redemption fails with
// ErrActionTokenInvalid.
func (e *Engine) VerifyEmail(ctx context.Context, tok string) error {
	if err := e.ready(); err != nil {
		return err
	}
	userID, err := e.actions.Consume(ctx, stores.PurposeVerifyEmail, tok)
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
	if u.EmailVerified {
		return nil
	}
	u.EmailVerified = true
	if err := e.store.UpdateUser(ctx, u); err != nil {
		return err
	}

	e.metricInc(metrics.MetricEmailVerified)
	e.emitAudit(EventEmailVerified, u.ID, u.Email, true, nil, nil)
	return nil
}

// ResendVerification issues a fresh verification token. It reports
// success for unknown and already-verified addresses alike so the
// endpoint cannot be used to probe for accounts.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
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
	if u.EmailVerified {
		return nil
	}
	return e.sendVerification(ctx, u)
}
