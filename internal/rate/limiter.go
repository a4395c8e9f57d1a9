// Package rate enforces fixed-window attempt budgets for login and MFA
// verification using Redis counters. Counters are keyed per identifier and,
// optionally, per client IP; a missing key reads as zero so the limiter
// never reveals whether an account exists.
package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	EnableIPThrottle bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxMFAAttempts   int
	MFACooldown      time.Duration
}

// Limiter tracks failed attempts in Redis. Safe for concurrent use.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

// CheckLogin reports ErrRateLimited when the identifier+IP pair has
// exhausted its login attempt budget.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if err := l.check(ctx, loginKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.check(ctx, loginIPKey(ip), l.config.MaxLoginAttempts)
	}
	return nil
}

// RecordLoginFailure counts one failed login for the identifier+IP pair.
// Returns ErrRateLimited once the budget is crossed.
func (l *Limiter) RecordLoginFailure(ctx context.Context, identifier, ip string) error {
	count, err := l.incrementWithTTL(ctx, loginKey(identifier), l.config.LoginCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// ResetLogin clears the failed-login counters after a successful login or a
// completed password reset.
func (l *Limiter) ResetLogin(ctx context.Context, identifier, ip string) error {
	keys := []string{loginKey(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckMFA reports ErrRateLimited when the user exhausted the MFA
// verification budget.
func (l *Limiter) CheckMFA(ctx context.Context, userID string) error {
	return l.check(ctx, mfaKey(userID), l.config.MaxMFAAttempts)
}

// RecordMFAFailure counts one failed MFA verification for the user.
func (l *Limiter) RecordMFAFailure(ctx context.Context, userID string) error {
	count, err := l.incrementWithTTL(ctx, mfaKey(userID), l.config.MFACooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxMFAAttempts) {
		return ErrRateLimited
	}
	return nil
}

// ResetMFA clears the MFA counter after a successful verification.
func (l *Limiter) ResetMFA(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, mfaKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) check(ctx context.Context, key string, max int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(max) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val(), nil
}

func loginKey(identifier string) string { return "arl:login:id:" + identifier }
func loginIPKey(ip string) string       { return "arl:login:ip:" + ip }
func mfaKey(userID string) string       { return "arl:mfa:" + userID }
