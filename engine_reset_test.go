package logauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPasswordResetFlow(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	token, err := engine.RequestPasswordReset(ctx, "Alice@Example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known account")
	}

	if err := engine.ConfirmPasswordReset(ctx, token, "replacement-pass-789"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "replacement-pass-789"); err != nil {
		t.Fatalf("login with reset password failed: %v", err)
	}
}

func TestPasswordResetTokenIsSingleUse(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	token, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	if err := engine.ConfirmPasswordReset(ctx, token, "replacement-pass-789"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, token, "another-password-456"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid on reuse, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "replacement-pass-789"); err != nil {
		t.Fatalf("first reset must stand: %v", err)
	}
}

func TestPasswordResetNewRequestInvalidatesOldToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	first, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	second, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("second RequestPasswordReset failed: %v", err)
	}

	if err := engine.ConfirmPasswordReset(ctx, first, "replacement-pass-789"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected superseded token rejected, got %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, second, "replacement-pass-789"); err != nil {
		t.Fatalf("ConfirmPasswordReset with latest token failed: %v", err)
	}
}

func TestPasswordResetLosingRacerFails(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	info := registerAccount(t, engine, "alice@example.com", "correct-password-123")

	token, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	// Simulate a concurrent confirmation winning between the lookup and
	// the compare-and-clear: the digest is gone when this caller clears.
	store.beforeClearReset = func() {
		store.mu.Lock()
		store.accounts[info.ID].ResetTokenHash = nil
		store.mu.Unlock()
		store.beforeClearReset = nil
	}

	if err := engine.ConfirmPasswordReset(ctx, token, "replacement-pass-789"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected losing confirmation rejected, got %v", err)
	}

	// The loser's password must not have been applied.
	if _, err := engine.Login(ctx, "alice@example.com", "replacement-pass-789"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("losing confirmation must not change the password, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("original password must still work: %v", err)
	}
}

func TestPasswordResetExpiredToken(t *testing.T) {
	engine, store, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	info := registerAccount(t, engine, "alice@example.com", "correct-password-123")

	token, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	store.accounts[info.ID].ResetExpiresAt = time.Now().Add(-time.Minute)

	if err := engine.ConfirmPasswordReset(ctx, token, "replacement-pass-789"); !errors.Is(err, ErrResetInvalid) {
		t.Fatalf("expected ErrResetInvalid for expired token, got %v", err)
	}
}

func TestPasswordResetFailuresAreUniform(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	for _, token := range []string{"", "not-a-token", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if err := engine.ConfirmPasswordReset(ctx, token, "replacement-pass-789"); !errors.Is(err, ErrResetInvalid) {
			t.Fatalf("token %q: expected ErrResetInvalid, got %v", token, err)
		}
	}
}

func TestPasswordResetDoesNotRevealAccounts(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	token, err := engine.RequestPasswordReset(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("unknown email must not error: %v", err)
	}
	if token != "" {
		t.Fatal("unknown email must not yield a token")
	}

	info := registerAccount(t, engine, "alice@example.com", "correct-password-123")
	if err := engine.Deactivate(ctx, info.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	token, err = engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil || token != "" {
		t.Fatalf("deactivated account must look unknown, got token=%q err=%v", token, err)
	}
}

func TestPasswordResetEnforcesPolicy(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")
	token, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	if err := engine.ConfirmPasswordReset(ctx, token, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	// The policy rejection must not burn the token.
	if err := engine.ConfirmPasswordReset(ctx, token, "replacement-pass-789"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed after policy retry: %v", err)
	}
}

func TestPasswordResetClearsLockout(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")
	for i := 0; i < 5; i++ {
		engine.Login(ctx, "alice@example.com", "wrong-password-456")
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock, got %v", err)
	}

	token, err := engine.RequestPasswordReset(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, token, "replacement-pass-789"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "replacement-pass-789"); err != nil {
		t.Fatalf("expected reset to unlock the account, got %v", err)
	}
}
