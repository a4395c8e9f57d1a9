package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, cfg), mr
}

func TestLoginBudgetExhaustion(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		MaxLoginAttempts: 3,
		LoginCooldown:    time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "alice@example.com", ""); err != nil {
			t.Fatalf("attempt %d blocked early: %v", i, err)
		}
		if err := l.RecordLoginFailure(ctx, "alice@example.com", ""); err != nil {
			t.Fatalf("recording failure %d: %v", i, err)
		}
	}

	if err := l.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after budget spent, got %v", err)
	}
	// Other identifiers are unaffected.
	if err := l.CheckLogin(ctx, "bob@example.com", ""); err != nil {
		t.Fatalf("unrelated identifier blocked: %v", err)
	}
}

func TestLoginResetClearsCounter(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		MaxLoginAttempts: 2,
		LoginCooldown:    time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = l.RecordLoginFailure(ctx, "alice@example.com", "")
	}
	if err := l.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit before reset, got %v", err)
	}
	if err := l.ResetLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("still limited after reset: %v", err)
	}
}

func TestLoginCooldownExpiry(t *testing.T) {
	l, mr := newTestLimiter(t, Config{
		MaxLoginAttempts: 1,
		LoginCooldown:    30 * time.Second,
	})
	ctx := context.Background()

	_ = l.RecordLoginFailure(ctx, "alice@example.com", "")
	if err := l.CheckLogin(ctx, "alice@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected limit inside window, got %v", err)
	}

	mr.FastForward(31 * time.Second)

	if err := l.CheckLogin(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("limit survived window expiry: %v", err)
	}
}

func TestIPThrottleSharedAcrossIdentifiers(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		EnableIPThrottle: true,
		MaxLoginAttempts: 2,
		LoginCooldown:    time.Minute,
	})
	ctx := context.Background()

	_ = l.RecordLoginFailure(ctx, "alice@example.com", "203.0.113.9")
	_ = l.RecordLoginFailure(ctx, "bob@example.com", "203.0.113.9")

	// A third identity from the same address is blocked by the IP counter.
	if err := l.CheckLogin(ctx, "carol@example.com", "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	// Same identity from a fresh address passes.
	if err := l.CheckLogin(ctx, "carol@example.com", "198.51.100.4"); err != nil {
		t.Fatalf("fresh IP blocked: %v", err)
	}
}

func TestMFABudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{
		MaxMFAAttempts: 2,
		MFACooldown:    time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckMFA(ctx, "user-1"); err != nil {
			t.Fatalf("attempt %d blocked early: %v", i, err)
		}
		_ = l.RecordMFAFailure(ctx, "user-1")
	}
	if err := l.CheckMFA(ctx, "user-1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.ResetMFA(ctx, "user-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckMFA(ctx, "user-1"); err != nil {
		t.Fatalf("still limited after reset: %v", err)
	}
}

func TestRedisOutageSurfacesBackendError(t *testing.T) {
	l, mr := newTestLimiter(t, Config{
		MaxLoginAttempts: 3,
		LoginCooldown:    time.Minute,
	})
	mr.Close()

	err := l.RecordLoginFailure(context.Background(), "alice@example.com", "")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
