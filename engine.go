package authcore

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/adminkit/authcore/internal/metrics"
	"github.com/adminkit/authcore/internal/rate"
	"github.com/adminkit/authcore/internal/stores"
	"github.com/adminkit/authcore/password"
	"github.com/adminkit/authcore/permission"
	"github.com/adminkit/authcore/token"
)

// Engine is the authentication and access-control core. Build one with
// the Builder; all methods are safe for concurrent use.
type Engine struct {
	config     Config
	store      Store
	tokens     *token.Service
	hasher     *password.Hasher
	totp       *totpEngine
	cipher     *secretCipher
	limiter    *rate.Limiter
	challenges *stores.ChallengeStore
	actions    *stores.ActionTokenStore
	metrics    *metrics.Metrics
	audit      *dispatcher
	notifier   Notifier
	logger     *zap.Logger
	closed     atomic.Bool

	// now is overridden in tests.
	now func() time.Time
}

// Close flushes the audit queue and marks the engine unusable. The
// credential store and Redis client belong to the caller and stay open.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.audit != nil {
		e.audit.close()
	}
	return nil
}

func (e *Engine) ready() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

func (e *Engine) emitAudit(eventType, userID, email string, success bool, failure error, meta map[string]string) {
	if e.audit == nil {
		return
	}
	ev := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		Success:   success,
		Metadata:  meta,
	}
	if failure != nil {
		ev.Error = failure.Error()
	}
	e.audit.emit(ev)
}

// ResolvePermissions derives the user's effective permission names from
// their role. The result is computed from live store state on every call
// and is never cached; a role change is visible on the next check.
// Superusers resolve to the system wildcard.
func (e *Engine) ResolvePermissions(ctx context.Context, userID string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.permissionsFor(ctx, u)
}

func (e *Engine) permissionsFor(ctx context.Context, u *User) ([]string, error) {
	if u.IsSuperuser {
		return []string{permission.SystemWildcard}, nil
	}
	if u.RoleID == "" {
		return nil, nil
	}
	names, err := e.store.RolePermissions(ctx, u.RoleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return names, nil
}

// HasPermission reports whether the user currently holds the requested
// permission, honoring category and system wildcards.
func (e *Engine) HasPermission(ctx context.Context, userID, requested string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	e.metricInc(metrics.MetricPermissionChecks)

	granted, err := e.ResolvePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	if permission.Match(granted, requested) {
		return true, nil
	}
	e.metricInc(metrics.MetricPermissionDenied)
	e.emitAudit(EventPermissionDenied, userID, "", false, ErrPermissionDenied,
		map[string]string{"permission": requested})
	return false, nil
}

// RequirePermission is HasPermission with a denial error, for call sites
// that guard an operation.
func (e *Engine) RequirePermission(ctx context.Context, userID, requested string) error {
	ok, err := e.HasPermission(ctx, userID, requested)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

// Authenticate validates a session token and returns the identity it
// carries. Permissions reflect the token as issued, not live store state;
// checks that must see the present use HasPermission.
func (e *Engine) Authenticate(ctx context.Context, sessionToken string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	claims, err := e.tokens.Validate(sessionToken, token.KindSession)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Authenticated: true,
		UserID:        claims.UserID,
		Email:         claims.Subject,
		Role:          claims.Role,
		Permissions:   claims.Permissions,
		MFAVerified:   claims.MFAVerified,
	}, nil
}

// AuthenticateOptional is Authenticate for endpoints that also serve
// anonymous callers: a missing or invalid token yields an unauthenticated
// Identity instead of an error. Backend failures still surface.
func (e *Engine) AuthenticateOptional(ctx context.Context, sessionToken string) (Identity, error) {
	if sessionToken == "" {
		return Identity{}, nil
	}
	id, err := e.Authenticate(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return Identity{}, nil
		}
		return Identity{}, err
	}
	return *id, nil
}

// Logout is a deliberate no-op: sessions are stateless signed claims
// with a 30-minute ceiling, and no server-side record exists to revoke.
// Callers discard their tokens; the method exists so transports have an
// explicit endpoint to wire.
func (e *Engine) Logout(context.Context) error {
	return e.ready()
}

// issueSessionPair mints the session and refresh tokens for an
// authenticated user with freshly resolved permissions.
func (e *Engine) issueSessionPair(ctx context.Context, u *User, mfaVerified bool) (*SessionPair, error) {
	perms, err := e.permissionsFor(ctx, u)
	if err != nil {
		return nil, err
	}
	roleName := ""
	if u.RoleID != "" {
		if r, err := e.store.RoleByID(ctx, u.RoleID); err == nil {
			roleName = r.Name
		}
	}

	session, err := e.tokens.IssueSession(u.Email, u.ID, roleName, perms, mfaVerified)
	if err != nil {
		return nil, err
	}
	refresh, err := e.tokens.IssueRefresh(u.Email, u.ID, mfaVerified)
	if err != nil {
		return nil, err
	}
	return &SessionPair{
		SessionToken: session,
		RefreshToken: refresh,
		ExpiresAt:    e.now().UTC().Add(e.config.Token.SessionTTL),
	}, nil
}
