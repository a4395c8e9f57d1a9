package rate

import "errors"

var (
	// ErrRateLimited marks an identifier or IP that exhausted its attempt
	// budget for the current cooldown window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures so callers can map
	// them to a backend-unavailable outcome instead of leaking client errors.
	ErrRedisUnavailable = errors.New("rate limiter backend unavailable")
)
