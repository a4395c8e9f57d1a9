// Package stores holds Redis-backed state that must outlive a single
// request but never a login flow: pending MFA challenges keyed by the
// challenge token's jti.
package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrChallengeNotFound is returned when no pending challenge exists
	// for the given ID. A redeemed or expired challenge reads the same as
	// one that never existed.
	ErrChallengeNotFound = errors.New("stores: challenge not found")

	// ErrChallengeBackend wraps Redis transport failures.
	ErrChallengeBackend = errors.New("stores: challenge backend unavailable")
)

// Challenge is the server-side record of an in-flight MFA login. The
// challenge token a client holds is only redeemable while this record
// exists; deleting it makes the token worthless even before expiry.
type Challenge struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	IP        string    `json:"ip,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// ChallengeStore persists pending MFA challenges in Redis with a TTL
// matching the challenge token lifetime.
type ChallengeStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

// NewChallengeStore creates a store whose records expire after ttl.
func NewChallengeStore(redisClient redis.UniversalClient, ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{redis: redisClient, ttl: ttl}
}

// Save writes the challenge record under its ID.
func (s *ChallengeStore) Save(ctx context.Context, id string, ch Challenge) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("stores: encode challenge: %w", err)
	}
	if err := s.redis.Set(ctx, challengeKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Get loads the challenge record for id.
func (s *ChallengeStore) Get(ctx context.Context, id string) (Challenge, error) {
	data, err := s.redis.Get(ctx, challengeKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Challenge{}, ErrChallengeNotFound
		}
		return Challenge{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	var ch Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return Challenge{}, fmt.Errorf("stores: decode challenge: %w", err)
	}
	return ch, nil
}

// Redeem deletes the challenge record and reports whether this call was
// the one that removed it. Redis DEL returns the number of keys removed,
// so concurrent redemptions of the same challenge resolve to exactly one
// winner.
func (s *ChallengeStore) Redeem(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, challengeKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// RecordFailure bumps the attempt counter for id. When the counter
// reaches maxAttempts the record is deleted and exhausted=true is
// returned, forcing the user to restart login.
func (s *ChallengeStore) RecordFailure(ctx context.Context, id string, maxAttempts int) (exhausted bool, err error) {
	ch, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	ch.Attempts++
	if maxAttempts > 0 && ch.Attempts >= maxAttempts {
		if _, err := s.Redeem(ctx, id); err != nil {
			return false, err
		}
		return true, nil
	}
	// Preserve the remaining TTL so failed attempts cannot extend the
	// challenge window.
	data, err := json.Marshal(ch)
	if err != nil {
		return false, fmt.Errorf("stores: encode challenge: %w", err)
	}
	if err := s.redis.Set(ctx, challengeKey(id), data, redis.KeepTTL).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return false, nil
}

func challengeKey(id string) string { return "mfa:challenge:" + id }
