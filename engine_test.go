package logauth

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeStore is the in-package AccountStore used by engine tests. Accounts
// are reachable directly so tests can tweak stored state.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byEmail  map[string]string

	// beforeClearReset, when set, runs before ClearResetToken takes the
	// lock, letting tests interleave a competing write.
	beforeClearReset func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
	}
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := *s.accounts[id]
	return &out, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := *account
	return &out, nil
}

func (s *fakeStore) FindByResetTokenHash(_ context.Context, hash []byte) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if len(account.ResetTokenHash) > 0 && bytes.Equal(account.ResetTokenHash, hash) {
			out := *account
			return &out, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *fakeStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[account.Email]; taken {
		return ErrDuplicateEmail
	}
	stored := *account
	s.accounts[stored.ID] = &stored
	s.byEmail[stored.Email] = stored.ID
	return nil
}

func (s *fakeStore) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	return s.mutate(id, func(a *Account) {
		a.PasswordHash = hash
		a.PasswordChangedAt = changedAt
	})
}

func (s *fakeStore) UpdateTwoFactor(_ context.Context, id string, enabled bool, secret string) error {
	return s.mutate(id, func(a *Account) {
		a.TwoFactorEnabled = enabled
		a.TwoFactorSecret = secret
	})
}

func (s *fakeStore) SetResetToken(_ context.Context, id string, hash []byte, expiresAt time.Time) error {
	return s.mutate(id, func(a *Account) {
		a.ResetTokenHash = append([]byte(nil), hash...)
		a.ResetExpiresAt = expiresAt
	})
}

func (s *fakeStore) ClearResetToken(_ context.Context, id string, hash []byte) error {
	if s.beforeClearReset != nil {
		s.beforeClearReset()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok || !bytes.Equal(account.ResetTokenHash, hash) {
		return ErrAccountNotFound
	}
	account.ResetTokenHash = nil
	account.ResetExpiresAt = time.Time{}
	return nil
}

func (s *fakeStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return s.mutate(id, func(a *Account) { a.LastLoginAt = at })
}

func (s *fakeStore) SetActive(_ context.Context, id string, active bool) error {
	return s.mutate(id, func(a *Account) { a.Active = active })
}

func (s *fakeStore) mutate(id string, fn func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	fn(account)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Cost = 4
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeStore, *miniredis.Miniredis) {
	t.Helper()

	mr, client := newTestRedis(t)
	store := newFakeStore()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, mr
}

func registerAccount(t *testing.T, engine *Engine, email, password string) *AccountInfo {
	t.Helper()

	info, err := engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return info
}

func TestLoginIssuesTokenPair(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	result, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if result.TwoFactorPending {
		t.Fatal("unexpected 2fa challenge")
	}
	if result.Account.Email != "alice@example.com" {
		t.Fatalf("unexpected account: %+v", result.Account)
	}

	actor, err := engine.Authenticate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if actor.ID != result.Account.ID {
		t.Fatal("access token must resolve to the logged-in account")
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "Alice@Example.COM", "correct-password-123")

	if _, err := engine.Login(ctx, "  ALICE@example.com ", "correct-password-123"); err != nil {
		t.Fatalf("Login with differently-cased email failed: %v", err)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	if _, err := engine.Login(ctx, "nobody@example.com", "whatever-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "wrong-password-456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLockoutAfterThresholdFailures(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	// Five failures, each still reported as invalid credentials.
	for i := 0; i < 5; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "wrong-password-456"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// The sixth attempt is locked out even with the correct password.
	_, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatal("expected *LockedError with expiry")
	}
	remaining := time.Until(locked.Until)
	if remaining < 29*time.Minute || remaining > 31*time.Minute {
		t.Fatalf("unexpected lock window: %v", remaining)
	}
}

func TestExpiredLockRestartsFailureWindow(t *testing.T) {
	engine, _, mr := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	for i := 0; i < 5; i++ {
		engine.Login(ctx, "alice@example.com", "wrong-password-456")
	}

	mr.FastForward(31 * time.Minute)

	// Fresh window: a single failure must not re-lock.
	if _, err := engine.Login(ctx, "alice@example.com", "wrong-password-456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials after lock expiry, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("expected login to succeed after lock expiry, got %v", err)
	}
}

func TestSuccessfulLoginResetsFailureCounter(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")

	for i := 0; i < 4; i++ {
		engine.Login(ctx, "alice@example.com", "wrong-password-456")
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// Counter restarted: four more failures stay under the threshold.
	for i := 0; i < 4; i++ {
		if _, err := engine.Login(ctx, "alice@example.com", "wrong-password-456"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d after reset: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
}

func TestRefreshRotationBlocksReplay(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")
	result, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	pair, err := engine.Refresh(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if pair.RefreshToken == result.RefreshToken {
		t.Fatal("rotation must issue a new refresh token")
	}

	// The consumed token stays structurally valid but must be refused.
	if _, err := engine.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on replay, got %v", err)
	}

	// The replacement still works.
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("expected new refresh token to work, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")
	result, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, result.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
}

func TestTokenFailureResultsAreUniform(t *testing.T) {
	cfg := testConfig()
	cfg.Token.AccessTTL = time.Millisecond
	cfg.Token.RefreshTTL = 20 * time.Millisecond
	cfg.Token.Leeway = 0
	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")
	result, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	// An expired token and a tampered token must be indistinguishable to
	// the caller: same message, same status mapping.
	_, expiredErr := engine.Refresh(ctx, result.RefreshToken)
	_, tamperedErr := engine.Refresh(ctx, "garbage")
	if expiredErr == nil || tamperedErr == nil {
		t.Fatal("expected both refreshes rejected")
	}
	if expiredErr.Error() != tamperedErr.Error() {
		t.Fatalf("refresh failures must look alike: %q vs %q", expiredErr, tamperedErr)
	}
	if KindOf(expiredErr) != KindOf(tamperedErr) {
		t.Fatal("refresh failures must map to the same status")
	}

	_, expiredErr = engine.Authenticate(ctx, result.AccessToken)
	_, tamperedErr = engine.Authenticate(ctx, "garbage")
	if expiredErr == nil || tamperedErr == nil {
		t.Fatal("expected both access tokens rejected")
	}
	if expiredErr.Error() != tamperedErr.Error() {
		t.Fatalf("authenticate failures must look alike: %q vs %q", expiredErr, tamperedErr)
	}
	if KindOf(expiredErr) != KindOf(tamperedErr) {
		t.Fatal("authenticate failures must map to the same status")
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")
	result, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	engine.Logout(ctx, result.RefreshToken)

	if _, err := engine.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after logout, got %v", err)
	}

	// Logout with garbage still succeeds silently.
	engine.Logout(ctx, "not-a-token")
	engine.Logout(ctx, "")
}

func TestAuthenticateRejectsTokensIssuedBeforePasswordChange(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	info := registerAccount(t, engine, "alice@example.com", "correct-password-123")
	result, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// iat carries second precision; make sure the change lands strictly later.
	time.Sleep(1100 * time.Millisecond)

	if err := engine.ChangePassword(ctx, info.ID, "correct-password-123", "replacement-pass-456"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := engine.Authenticate(ctx, result.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected stale access token rejected, got %v", err)
	}
	if _, err := engine.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected stale refresh token rejected, got %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "replacement-pass-456"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestDeactivatedAccountIsRefusedEverywhere(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	info := registerAccount(t, engine, "alice@example.com", "correct-password-123")
	result, err := engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.Deactivate(ctx, info.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	// Login is indistinguishable from a bad password.
	if _, err := engine.Login(ctx, "alice@example.com", "correct-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.Authenticate(ctx, result.AccessToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := engine.Refresh(ctx, result.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestLoginRecordsMetrics(t *testing.T) {
	engine, _, _ := newTestEngine(t, testConfig())
	ctx := context.Background()

	registerAccount(t, engine, "alice@example.com", "correct-password-123")
	engine.Login(ctx, "alice@example.com", "wrong-password-456")
	engine.Login(ctx, "alice@example.com", "correct-password-123")

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected 1 login failure, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricRegisterSuccess] != 1 {
		t.Fatalf("expected 1 register success, got %d", snap.Counters[MetricRegisterSuccess])
	}
}
