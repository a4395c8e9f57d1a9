package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndVerifyEmail(t *testing.T) {
	e, _, notifier := newTestEngine(t)
	ctx := context.Background()

	u, err := e.Register(ctx, RegisterInput{
		Email:    "Alice@Example.com",
		Password: "correct horse battery",
		FullName: "Alice",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if u.EmailVerified {
		t.Fatal("fresh registration should be unverified")
	}

	tok := notifier.verifications["alice@example.com"]
	if tok == "" {
		t.Fatal("no verification token delivered")
	}
	if err := e.VerifyEmail(ctx, tok); err != nil {
		t.Fatalf("verify: %v", err)
	}
	// Verification tokens are single-use.
	if err := e.VerifyEmail(ctx, tok); !errors.Is(err, ErrActionTokenInvalid) {
		t.Fatalf("second redemption: got %v", err)
	}

	if _, err := e.Login(ctx, LoginInput{Email: "alice@example.com", Password: "correct horse battery"}); err != nil {
		t.Fatalf("login after verification: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	in := RegisterInput{Email: "alice@example.com", Password: "correct horse battery"}
	if _, err := e.Register(ctx, in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := e.Register(ctx, in); !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("duplicate register: got %v", err)
	}
}

func TestRegisterClosed(t *testing.T) {
	e, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Registration.Open = false
	})
	_, err := e.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("closed registration: got %v", err)
	}
}

func TestResendVerificationIsEnumerationSafe(t *testing.T) {
	e, _, notifier := newTestEngine(t)
	ctx := context.Background()

	// Unknown addresses succeed without sending anything.
	if err := e.ResendVerification(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown address: %v", err)
	}
	if len(notifier.verifications) != 0 {
		t.Fatal("nothing should have been sent")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	e, store, notifier := newTestEngine(t)
	ctx := context.Background()
	registerVerified(t, e, store, "alice@example.com", "correct horse battery")

	if err := e.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	tok := notifier.resets["alice@example.com"]
	if tok == "" {
		t.Fatal("no reset token delivered")
	}

	if err := e.ConfirmPasswordReset(ctx, tok, "entirely new passphrase"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// Token is spent.
	if err := e.ConfirmPasswordReset(ctx, tok, "another one"); !errors.Is(err, ErrActionTokenInvalid) {
		t.Fatalf("second confirm: got %v", err)
	}

	// Old password is dead, new one works.
	if _, err := e.Login(ctx, LoginInput{Email: "alice@example.com", Password: "correct horse battery"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: got %v", err)
	}
	if _, err := e.Login(ctx, LoginInput{Email: "alice@example.com", Password: "entirely new passphrase"}); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestPasswordResetRejectedPasswordKeepsToken(t *testing.T) {
	e, store, notifier := newTestEngine(t)
	ctx := context.Background()
	registerVerified(t, e, store, "alice@example.com", "correct horse battery")

	if err := e.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request: %v", err)
	}
	tok := notifier.resets["alice@example.com"]

	// A too-short replacement fails without spending the token.
	if err := e.ConfirmPasswordReset(ctx, tok, "tiny"); err == nil {
		t.Fatal("short password accepted")
	}
	if err := e.ConfirmPasswordReset(ctx, tok, "entirely new passphrase"); err != nil {
		t.Fatalf("retry with the same token: %v", err)
	}
	if _, err := e.Login(ctx, LoginInput{Email: "alice@example.com", Password: "entirely new passphrase"}); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}
}

func TestPasswordResetUnknownAddressSilent(t *testing.T) {
	e, _, notifier := newTestEngine(t)

	if err := e.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown address: %v", err)
	}
	if len(notifier.resets) != 0 {
		t.Fatal("nothing should have been sent")
	}
}

func TestChangePassword(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	u := registerVerified(t, e, store, "alice@example.com", "correct horse battery")

	if err := e.ChangePassword(ctx, u.ID, "wrong", "next passphrase"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: got %v", err)
	}
	if err := e.ChangePassword(ctx, u.ID, "correct horse battery", "next passphrase"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if _, err := e.Login(ctx, LoginInput{Email: "alice@example.com", Password: "next passphrase"}); err != nil {
		t.Fatalf("login with rotated password: %v", err)
	}
}
