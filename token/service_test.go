package token

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		SigningKey:   []byte("0123456789abcdef0123456789abcdef"),
		Issuer:       "authcore-test",
		SessionTTL:   30 * time.Minute,
		RefreshTTL:   7 * 24 * time.Hour,
		ChallengeTTL: 5 * time.Minute,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(testConfig())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestSessionRoundTrip(t *testing.T) {
	svc := newTestService(t)

	perms := []string{"users.read", "users.update"}
	raw, err := svc.IssueSession("a@x.com", "u1", "manager", perms, false)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	claims, err := svc.Validate(raw, KindSession)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Subject != "a@x.com" || claims.UserID != "u1" || claims.Role != "manager" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Permissions) != 2 || claims.Permissions[0] != "users.read" {
		t.Fatalf("unexpected permissions: %v", claims.Permissions)
	}
	if claims.MFAPending || claims.MFAVerified {
		t.Fatalf("unexpected MFA flags: %+v", claims)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt) != 30*time.Minute {
		t.Fatalf("unexpected lifetime: %v", claims.ExpiresAt.Sub(claims.IssuedAt))
	}
}

func TestRefreshCarriesNoPermissions(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueRefresh("a@x.com", "u1", true)
	if err != nil {
		t.Fatalf("IssueRefresh failed: %v", err)
	}
	claims, err := svc.Validate(raw, KindRefresh)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Role != "" || len(claims.Permissions) != 0 {
		t.Fatalf("refresh token must not carry role or permissions: %+v", claims)
	}
	if !claims.MFAVerified {
		t.Fatal("refresh token lost the MFA marker")
	}
}

func TestKindsAreNotInterchangeable(t *testing.T) {
	svc := newTestService(t)

	refresh, err := svc.IssueRefresh("a@x.com", "u1", false)
	if err != nil {
		t.Fatalf("IssueRefresh failed: %v", err)
	}
	if _, err := svc.Validate(refresh, KindSession); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for refresh-as-session, got %v", err)
	}

	challenge, err := svc.IssueChallenge("a@x.com", "u1", "c1")
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}
	if _, err := svc.Validate(challenge, KindRefresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for challenge-as-refresh, got %v", err)
	}
}

func TestChallengeCarriesPendingMarkerAndID(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueChallenge("a@x.com", "u1", "challenge-42")
	if err != nil {
		t.Fatalf("IssueChallenge failed: %v", err)
	}
	claims, err := svc.Validate(raw, KindChallenge)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !claims.MFAPending {
		t.Fatal("expected mfa_pending marker on challenge token")
	}
	if claims.ChallengeID != "challenge-42" {
		t.Fatalf("unexpected challenge id %q", claims.ChallengeID)
	}
}

func TestExpiryBoundaryIsClosed(t *testing.T) {
	svc := newTestService(t)

	issued := time.Now()
	svc.now = func() time.Time { return issued }
	raw, err := svc.IssueSession("a@x.com", "u1", "user", nil, false)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	// Just inside the window.
	svc.now = func() time.Time { return issued.Add(30*time.Minute - time.Second) }
	if _, err := svc.Validate(raw, KindSession); err != nil {
		t.Fatalf("expected token valid just before expiry, got %v", err)
	}

	// Exactly at expires_at counts as expired. Truncate to whole seconds:
	// the wire claim has second precision.
	exp := issued.Truncate(time.Second).Add(30 * time.Minute)
	svc.now = func() time.Time { return exp }
	if _, err := svc.Validate(raw, KindSession); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid exactly at expiry, got %v", err)
	}

	svc.now = func() time.Time { return exp.Add(time.Hour) }
	if _, err := svc.Validate(raw, KindSession); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after expiry, got %v", err)
	}
}

func TestValidateCollapsesAllFailures(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueSession("a@x.com", "u1", "user", nil, false)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	// Forged: signed under a different key.
	otherCfg := testConfig()
	otherCfg.SigningKey = []byte("ffffffffffffffffffffffffffffffff")
	other, err := NewService(otherCfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	forged, err := other.IssueSession("a@x.com", "u1", "user", nil, false)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	tampered := raw[:len(raw)-4] + "AAAA"

	for _, bad := range []string{"", "garbage", "a.b.c", tampered, forged} {
		if _, err := svc.Validate(bad, KindSession); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", bad, err)
		}
	}
}

func TestWireFormatUsesFlatClaimKeys(t *testing.T) {
	svc := newTestService(t)

	raw, err := svc.IssueSession("a@x.com", "u1", "admin", []string{"users.*"}, true)
	if err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}
	if strings.Count(raw, ".") != 2 {
		t.Fatalf("expected compact JWS form, got %q", raw)
	}
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.SigningKey = []byte("short")
	if _, err := NewService(cfg); err == nil {
		t.Fatal("expected error for short signing key")
	}

	cfg = testConfig()
	cfg.SessionTTL = 0
	if _, err := NewService(cfg); err == nil {
		t.Fatal("expected error for zero session TTL")
	}
}
