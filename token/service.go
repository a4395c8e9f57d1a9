package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for every validation failure: forged or
// mismatched signature, malformed structure, wrong kind, and expiry.
// Collapsing them is deliberate; distinguishing expired from forged tokens
// gives an attacker an oracle.
var ErrTokenInvalid = errors.New("invalid token")

// Kind discriminates the three token flavors on the wire.
type Kind string

const (
	// KindSession is a short-lived access token carrying role and permissions.
	KindSession Kind = "session"
	// KindRefresh is a long-lived token carrying only subject and user id.
	KindRefresh Kind = "refresh"
	// KindChallenge is a minutes-lived token marking a pending MFA step.
	KindChallenge Kind = "challenge"
)

// Config holds the process-wide signing material and token lifetimes.
// It is injected at construction and treated as immutable afterwards.
type Config struct {
	SigningKey   []byte
	Issuer       string
	SessionTTL   time.Duration
	RefreshTTL   time.Duration
	ChallengeTTL time.Duration
	Leeway       time.Duration
}

// Claims is the decoded, validated content of a token.
type Claims struct {
	Kind        Kind
	Subject     string
	UserID      string
	Role        string
	Permissions []string
	MFAPending  bool
	MFAVerified bool
	ChallengeID string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

type wireClaims struct {
	Typ         string   `json:"typ"`
	UserID      string   `json:"user_id,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	MFAPending  bool     `json:"mfa_pending,omitempty"`
	MFAVerified bool     `json:"mfa_verified,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates tokens with a symmetric key. Safe for
// concurrent use after construction.
type Service struct {
	config Config
	now    func() time.Time
}

// NewService validates cfg and returns a Service. A missing signing key or
// non-positive TTL is a configuration error and must be fatal at startup.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("token signing key must be at least 32 bytes")
	}
	if cfg.SessionTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.ChallengeTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token leeway out of range")
	}
	return &Service{config: cfg, now: time.Now}, nil
}

// IssueSession mints a session token embedding the user's role and resolved
// permission names.
func (s *Service) IssueSession(subject, userID, role string, permissions []string, mfaVerified bool) (string, error) {
	return s.sign(wireClaims{
		Typ:         string(KindSession),
		UserID:      userID,
		Role:        role,
		Permissions: permissions,
		MFAVerified: mfaVerified,
	}, subject, s.config.SessionTTL)
}

// IssueRefresh mints a refresh token. By construction it carries only the
// subject, the user id, and whether the originating login passed MFA:
// permissions may have changed by the time it is redeemed and must be
// re-resolved then, never read from this token. The MFA marker is a fact
// about the original authentication and stays fixed across rotations.
func (s *Service) IssueRefresh(subject, userID string, mfaVerified bool) (string, error) {
	return s.sign(wireClaims{
		Typ:         string(KindRefresh),
		UserID:      userID,
		MFAVerified: mfaVerified,
	}, subject, s.config.RefreshTTL)
}

// IssueChallenge mints the short-lived token returned when a password
// verifies but MFA is still pending. challengeID becomes the token's jti
// and keys the server-side one-time redemption record.
func (s *Service) IssueChallenge(subject, userID, challengeID string) (string, error) {
	claims := wireClaims{
		Typ:        string(KindChallenge),
		UserID:     userID,
		MFAPending: true,
	}
	claims.ID = challengeID
	return s.sign(claims, subject, s.config.ChallengeTTL)
}

func (s *Service) sign(claims wireClaims, subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims.Subject = subject
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if s.config.Issuer != "" {
		claims.Issuer = s.config.Issuer
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.config.SigningKey)
}

// Validate verifies signature, structure, kind, and expiry. A token
// presented at exactly its expiry instant is already expired.
func (s *Service) Validate(tokenStr string, expect Kind) (Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &wireClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.config.SigningKey, nil
	})
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*wireClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if Kind(claims.Typ) != expect {
		return Claims{}, ErrTokenInvalid
	}
	if claims.ExpiresAt == nil {
		return Claims{}, ErrTokenInvalid
	}
	// A token presented exactly at exp is expired. The parser's expiry
	// check is open at the boundary, so enforce the closed boundary here.
	// Skipped when leeway is configured: leeway deliberately widens the
	// acceptance window past exp.
	if s.config.Leeway == 0 && !s.now().Before(claims.ExpiresAt.Time) {
		return Claims{}, ErrTokenInvalid
	}

	out := Claims{
		Kind:        Kind(claims.Typ),
		Subject:     claims.Subject,
		UserID:      claims.UserID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		MFAPending:  claims.MFAPending,
		MFAVerified: claims.MFAVerified,
		ChallengeID: claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	out.ExpiresAt = claims.ExpiresAt.Time
	return out, nil
}
