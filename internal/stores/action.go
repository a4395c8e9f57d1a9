package stores

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purposes an action token can be issued for. A token only redeems under
// the purpose it was issued with.
const (
	PurposeVerifyEmail   = "verify_email"
	PurposePasswordReset = "password_reset"
)

// ErrActionTokenNotFound is returned when a token is unknown, expired,
// or already consumed.
var ErrActionTokenNotFound = errors.New("stores: action token not found")

// ActionTokenStore issues and redeems single-use tokens for email
// verification and password reset. Only a SHA-256 hash of the token is
// kept; the plaintext exists once, in the message sent to the user.
type ActionTokenStore struct {
	redis redis.UniversalClient
}

// NewActionTokenStore creates a store on the given Redis client.
func NewActionTokenStore(redisClient redis.UniversalClient) *ActionTokenStore {
	return &ActionTokenStore{redis: redisClient}
}

// Issue mints a token bound to userID under purpose, valid for ttl.
// Re-issuing replaces nothing: earlier tokens stay valid until they
// expire or are consumed.
func (s *ActionTokenStore) Issue(ctx context.Context, purpose, userID string, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("stores: issue action token: %w", err)
	}
	tok := base64.RawURLEncoding.EncodeToString(raw)

	err := s.redis.Set(ctx, actionKey(purpose, tok), userID, ttl).Err()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return tok, nil
}

// Consume redeems the token exactly once and returns the bound userID.
// GETDEL makes concurrent redemptions resolve to one winner.
func (s *ActionTokenStore) Consume(ctx context.Context, purpose, tok string) (string, error) {
	userID, err := s.redis.GetDel(ctx, actionKey(purpose, tok)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrActionTokenNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return userID, nil
}

func actionKey(purpose, tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return "action:" + purpose + ":" + hex.EncodeToString(sum[:])
}
