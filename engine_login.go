package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adminkit/authcore/internal/metrics"
	"github.com/adminkit/authcore/internal/stores"
	"github.com/adminkit/authcore/token"
)

// LoginInput carries the credential attempt. IP is optional and only
// used for throttling and audit.
type LoginInput struct {
	Email    string
	Password string
	IP       string
}

// Login verifies credentials and either completes the session or detours
// through MFA. Unknown accounts and wrong passwords both come back as
// ErrInvalidCredentials; the password is verified against a decoy hash
// for unknown emails so the two cases take comparable time.
func (e *Engine) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.CheckLogin(ctx, in.Email, in.IP); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.metricInc(metrics.MetricLoginRateLimited)
				e.emitAudit(EventLoginRateLimited, "", in.Email, false, err, nil)
			}
			return nil, err
		}
	}

	u, err := e.store.UserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.hasher.Verify(in.Password, decoyHash)
			return nil, e.failLogin(ctx, nil, in, ErrInvalidCredentials)
		}
		return nil, err
	}

	if !e.hasher.Verify(in.Password, u.PasswordHash) {
		return nil, e.failLogin(ctx, u, in, ErrInvalidCredentials)
	}

	// Account-state checks come after the password so that their errors
	// only reach callers who hold the credentials.
	if !u.IsActive {
		return nil, e.failLogin(ctx, u, in, ErrAccountInactive)
	}
	if e.config.Registration.RequireEmailVerification && !u.EmailVerified {
		return nil, e.failLogin(ctx, u, in, ErrEmailUnverified)
	}

	if u.MFAEnabled {
		challenge, err := e.issueChallenge(ctx, u, in.IP)
		if err != nil {
			return nil, err
		}
		e.metricInc(metrics.MetricMFARequired)
		e.emitAudit(EventMFAChallenge, u.ID, u.Email, true, nil, nil)
		return &LoginResult{MFARequired: true, Challenge: challenge}, nil
	}

	pair, err := e.completeLogin(ctx, u, in.IP, false)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: pair}, nil
}

// decoyHash is a valid bcrypt digest of random bytes. Verifying against
// it equalizes timing between unknown-email and wrong-password failures.
const decoyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func (e *Engine) failLogin(ctx context.Context, u *User, in LoginInput, cause error) error {
	e.metricInc(metrics.MetricLoginFailure)

	userID := ""
	if u != nil {
		userID = u.ID
	}
	e.emitAudit(EventLoginFailure, userID, in.Email, false, cause, nil)

	if e.limiter != nil {
		if err := e.limiter.RecordLoginFailure(ctx, in.Email, in.IP); err != nil {
			if errors.Is(err, ErrRateLimited) {
				return cause
			}
			e.logger.Warn("rate limiter unavailable", zap.Error(err))
		}
	}
	return cause
}

func (e *Engine) issueChallenge(ctx context.Context, u *User, ip string) (*MFAChallenge, error) {
	challengeID := uuid.NewString()
	tok, err := e.tokens.IssueChallenge(u.Email, u.ID, challengeID)
	if err != nil {
		return nil, err
	}
	err = e.challenges.Save(ctx, challengeID, stores.Challenge{
		UserID:    u.ID,
		Email:     u.Email,
		IP:        ip,
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &MFAChallenge{
		ChallengeToken: tok,
		ExpiresAt:      e.now().UTC().Add(e.config.Token.ChallengeTTL),
	}, nil
}

func (e *Engine) completeLogin(ctx context.Context, u *User, ip string, mfaVerified bool) (*SessionPair, error) {
	pair, err := e.issueSessionPair(ctx, u, mfaVerified)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	u.LastLoginAt = &now
	if err := e.store.UpdateUser(ctx, u); err != nil {
		e.logger.Warn("recording last login failed", zap.String("user_id", u.ID), zap.Error(err))
	}
	if e.limiter != nil {
		if err := e.limiter.ResetLogin(ctx, u.Email, ip); err != nil {
			e.logger.Warn("rate limiter unavailable", zap.Error(err))
		}
	}

	e.metricInc(metrics.MetricLoginSuccess)
	e.emitAudit(EventLoginSuccess, u.ID, u.Email, true, nil, nil)
	return pair, nil
}

// VerifyMFA redeems a challenge token with a TOTP or backup code and
// completes the login. The challenge is spent on success and on replay;
// wrong codes burn an attempt but leave it redeemable until the budget
// runs out.
func (e *Engine) VerifyMFA(ctx context.Context, challengeToken, code string) (*SessionPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.Validate(challengeToken, token.KindChallenge)
	if err != nil {
		return nil, err
	}

	ch, err := e.challenges.Get(ctx, claims.ChallengeID)
	if err != nil {
		if errors.Is(err, stores.ErrChallengeNotFound) {
			e.metricInc(metrics.MetricMFAReplay)
			e.emitAudit(EventMFAReplay, claims.UserID, claims.Subject, false, ErrMFAChallengeExpired, nil)
			return nil, ErrMFAChallengeExpired
		}
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.CheckMFA(ctx, ch.UserID); err != nil {
			return nil, err
		}
	}

	u, err := e.store.UserByID(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}
	if !u.MFAEnabled || !u.IsActive {
		return nil, ErrMFAChallengeExpired
	}

	usedBackup, err := e.verifyLoginCode(ctx, u, code)
	if err != nil {
		e.metricInc(metrics.MetricMFAFailure)
		e.emitAudit(EventMFAFailure, u.ID, u.Email, false, err, nil)

		if e.limiter != nil {
			if lerr := e.limiter.RecordMFAFailure(ctx, u.ID); lerr != nil && !errors.Is(lerr, ErrRateLimited) {
				e.logger.Warn("rate limiter unavailable", zap.Error(lerr))
			}
		}
		exhausted, serr := e.challenges.RecordFailure(ctx, claims.ChallengeID, e.config.MFA.ChallengeMaxAttempts)
		if serr != nil && !errors.Is(serr, stores.ErrChallengeNotFound) {
			e.logger.Warn("challenge store unavailable", zap.Error(serr))
		}
		if exhausted {
			return nil, ErrMFAChallengeExpired
		}
		return nil, err
	}

	// Spend the challenge exactly once. A concurrent redemption that
	// lost the race is treated as a replay.
	won, err := e.challenges.Redeem(ctx, claims.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !won {
		e.metricInc(metrics.MetricMFAReplay)
		e.emitAudit(EventMFAReplay, u.ID, u.Email, false, ErrMFAChallengeExpired, nil)
		return nil, ErrMFAChallengeExpired
	}

	if e.limiter != nil {
		if err := e.limiter.ResetMFA(ctx, u.ID); err != nil {
			e.logger.Warn("rate limiter unavailable", zap.Error(err))
		}
	}
	if usedBackup {
		e.metricInc(metrics.MetricBackupCodeUsed)
		e.emitAudit(EventBackupCodeUsed, u.ID, u.Email, true, nil, nil)
	}
	e.metricInc(metrics.MetricMFASuccess)
	e.emitAudit(EventMFASuccess, u.ID, u.Email, true, nil, nil)

	return e.completeLogin(ctx, u, ch.IP, true)
}

// verifyLoginCode tries TOTP first, then the backup codes. Both paths
// fail with the same error so a caller cannot tell which was attempted.
func (e *Engine) verifyLoginCode(ctx context.Context, u *User, code string) (usedBackup bool, err error) {
	secret, err := e.cipher.Open(u.MFASecretEnc)
	if err != nil {
		return false, err
	}
	ok, err := e.totp.VerifyCode(secret, code, e.now())
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}

	consumed, err := e.store.ConsumeBackupCode(ctx, u.ID, hashBackupCode(code))
	if err != nil {
		return false, err
	}
	if consumed {
		return true, nil
	}
	e.metricInc(metrics.MetricBackupCodeFailed)
	return false, ErrMFACodeInvalid
}

// Refresh exchanges a valid refresh token for a new session pair. Role
// and permissions are re-resolved from the store, so a role change since
// login is reflected in the new session. The refresh token is rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*SessionPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.Validate(refreshToken, token.KindRefresh)
	if err != nil {
		e.metricInc(metrics.MetricRefreshFailure)
		return nil, err
	}

	u, err := e.store.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(metrics.MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !u.IsActive {
		e.metricInc(metrics.MetricRefreshFailure)
		e.emitAudit(EventRefreshFailure, u.ID, u.Email, false, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	// The MFA marker follows the refresh token, not the user record: a
	// session minted here is only MFA-verified if the original login was.
	pair, err := e.issueSessionPair(ctx, u, claims.MFAVerified)
	if err != nil {
		return nil, err
	}
	e.metricInc(metrics.MetricRefreshSuccess)
	e.emitAudit(EventRefreshSuccess, u.ID, u.Email, true, nil, nil)
	return pair, nil
}
