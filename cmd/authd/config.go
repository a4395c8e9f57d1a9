package main

import (
	"encoding/base64"
	"errors"
	"os"
	"strconv"

	authcore "github.com/adminkit/authcore"
)

// configFromEnv assembles the engine configuration from the environment.
// AUTH_SIGNING_KEY and AUTH_MFA_KEY are required; AUTH_MFA_KEY must be 32
// bytes of standard base64.
func configFromEnv() (authcore.Config, error) {
	var cfg authcore.Config

	signingKey := os.Getenv("AUTH_SIGNING_KEY")
	if signingKey == "" {
		return cfg, errors.New("AUTH_SIGNING_KEY is required")
	}
	mfaKey, err := base64.StdEncoding.DecodeString(os.Getenv("AUTH_MFA_KEY"))
	if err != nil || len(mfaKey) != 32 {
		return cfg, errors.New("AUTH_MFA_KEY must be 32 base64-encoded bytes")
	}

	cfg.Token.SigningKey = []byte(signingKey)
	cfg.Token.Issuer = envOr("AUTH_ISSUER", "adminkit")
	cfg.MFA.SecretKey = mfaKey
	cfg.MFA.Issuer = envOr("AUTH_MFA_ISSUER", "AdminKit")
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.EnableIPThrottle = envBool("AUTH_IP_THROTTLE", true)
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Registration.Open = envBool("AUTH_OPEN_REGISTRATION", true)
	cfg.Registration.RequireEmailVerification = envBool("AUTH_REQUIRE_EMAIL_VERIFICATION", true)
	return cfg, nil
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
