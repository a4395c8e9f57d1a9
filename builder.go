package authcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adminkit/authcore/internal/metrics"
	"github.com/adminkit/authcore/internal/rate"
	"github.com/adminkit/authcore/internal/stores"
	"github.com/adminkit/authcore/password"
	"github.com/adminkit/authcore/token"
)

// Builder assembles an Engine. Configure with the With* methods and call
// Build once.
type Builder struct {
	config   Config
	store    Store
	redis    redis.UniversalClient
	logger   *zap.Logger
	sink     AuditSink
	notifier Notifier
}

// New starts a Builder with an empty configuration.
func New() *Builder {
	return &Builder{}
}

// WithConfig sets the engine configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the Redis client used for rate limiting, pending MFA
// challenges and one-time action tokens. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit event sink. Defaults to a no-op sink.
func (b *Builder) WithAuditSink(s AuditSink) *Builder {
	b.sink = s
	return b
}

// WithNotifier sets the out-of-band delivery hook for verification and
// reset messages. Defaults to a no-op.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.store == nil {
		return nil, errors.New("authcore: a credential store is required")
	}
	if b.redis == nil {
		return nil, errors.New("authcore: a redis client is required")
	}

	cfg := b.config
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewService(cfg.Token)
	if err != nil {
		return nil, err
	}
	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, err
	}
	cipher, err := newSecretCipher(cfg.MFA.SecretKey)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := b.sink
	if sink == nil {
		sink = NoOpSink{}
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	e := &Engine{
		config:     cfg,
		store:      b.store,
		tokens:     tokens,
		hasher:     hasher,
		totp:       newTOTPEngine(cfg.MFA),
		cipher:     cipher,
		challenges: stores.NewChallengeStore(b.redis, cfg.Token.ChallengeTTL),
		actions:    stores.NewActionTokenStore(b.redis),
		metrics:    metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled}),
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
	if cfg.RateLimit.Enabled {
		e.limiter = rate.New(b.redis, cfg.RateLimit.Config)
	}
	if cfg.Audit.Enabled {
		e.audit = newDispatcher(sink, cfg.Audit.BufferSize)
	}
	return e, nil
}
