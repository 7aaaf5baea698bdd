package logauth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/origbo/logware-auth/lockout"
	"github.com/origbo/logware-auth/password"
	"github.com/origbo/logware-auth/revocation"
	"github.com/origbo/logware-auth/token"
)

// Engine is the credential and session-security orchestrator. It is the only
// surface the routing layer talks to; every sub-component sits behind it.
// Construct through [Builder], use from any goroutine, Close on shutdown.
type Engine struct {
	config  Config
	store   AccountStore
	tokens  *token.Manager
	hasher  *password.Hasher
	locks   *lockout.Tracker
	revoked *revocation.Store
	totp    *totpManager
	audit   *auditDispatcher
	metrics *Metrics
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// RefreshTTL reports the configured refresh-token lifetime, used by
// transport adapters to size cookies.
func (e *Engine) RefreshTTL() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.Token.RefreshTTL
}

// AuditDropped reports audit events discarded under buffer pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counter values for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login checks the credentials and either issues a token pair or, for
// 2FA-enabled accounts, parks the login pending VerifyTwoFactorLogin.
//
// Unknown email, wrong password, and deactivated account all come back as
// ErrInvalidCredentials. An active lockout comes back as *LockedError
// before the password is even looked at, and a failed attempt that trips
// the threshold still reports ErrInvalidCredentials; only the next attempt
// sees the lock.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricLoginLatency, time.Since(start))
		}
	}()

	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	status, err := e.locks.Check(ctx, email)
	if err != nil {
		return nil, storeErr(err)
	}
	if status.Locked() {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, EventLoginLocked, false, "", email, ErrAccountLocked, nil)
		return nil, &LockedError{Until: status.LockedUntil}
	}

	account, err := e.store.FindByEmail(ctx, email)
	if err != nil || account == nil || !account.Active {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, storeErr(err)
		}
		return nil, e.failLogin(ctx, email, "")
	}

	if !e.hasher.Verify(ctx, plaintext, account.PasswordHash) {
		return nil, e.failLogin(ctx, email, account.ID)
	}

	if account.TwoFactorEnabled {
		e.metricInc(MetricTwoFactorPending)
		e.emitAudit(ctx, EventTwoFactorPending, true, account.ID, email, nil, nil)
		return &LoginResult{
			TwoFactorPending: true,
			Account:          account.Info(),
		}, nil
	}

	return e.completeLogin(ctx, account)
}

// VerifyTwoFactorLogin finishes a login that Login parked as pending.
// A wrong code counts as a failed attempt against the same lockout counter
// as a wrong password.
func (e *Engine) VerifyTwoFactorLogin(ctx context.Context, accountID, code string) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil || account == nil || !account.Active {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, storeErr(err)
		}
		return nil, ErrInvalidCredentials
	}
	if !account.TwoFactorEnabled || account.TwoFactorSecret == "" {
		return nil, ErrTwoFactorNotConfigured
	}

	status, err := e.locks.Check(ctx, account.Email)
	if err != nil {
		return nil, storeErr(err)
	}
	if status.Locked() {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, EventLoginLocked, false, account.ID, account.Email, ErrAccountLocked, nil)
		return nil, &LockedError{Until: status.LockedUntil}
	}

	secret, err := e.totp.DecodeSecret(account.TwoFactorSecret)
	if err != nil {
		return nil, ErrTwoFactorNotConfigured
	}

	ok, err := e.totp.VerifyCode(secret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, lerr := e.locks.RecordFailure(context.WithoutCancel(ctx), account.Email); lerr != nil {
			log.Printf("logauth: lockout record failed: %v", lerr)
		}
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, EventTwoFactorFailure, false, account.ID, account.Email, ErrTwoFactorInvalid, nil)
		return nil, ErrTwoFactorInvalid
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, EventTwoFactorSuccess, true, account.ID, account.Email, nil, nil)

	return e.completeLogin(ctx, account)
}

// Refresh rotates a refresh token: the presented token is verified, checked
// against the deny-list, revoked, and replaced together with a fresh access
// token. A token that fails any step yields the same client-visible result;
// the ErrTokenExpired/ErrTokenInvalid sentinels differ only for embedders.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(refreshToken, token.TypeRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, "", "", err, nil)
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := e.revoked.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, storeErr(err)
	}
	if revoked {
		e.metricInc(MetricRefreshReplayBlocked)
		e.emitAudit(ctx, EventRefreshReplay, false, claims.Subject, "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	account, err := e.store.FindByID(ctx, claims.Subject)
	if err != nil || account == nil || !account.Active {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, storeErr(err)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, claims.Subject, "", ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}
	if issuedBeforePasswordChange(claims, account) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, EventRefreshFailure, false, account.ID, account.Email, ErrTokenInvalid, nil)
		return nil, ErrTokenInvalid
	}

	// Revoke before issuing. The write runs detached from the request
	// context so a client disconnect cannot leave the old token live
	// alongside a new pair.
	if err := e.revoked.MarkRevoked(context.WithoutCancel(ctx), refreshToken, remainingLifetime(claims)); err != nil {
		return nil, storeErr(err)
	}

	access, refresh, err := e.tokens.IssuePair(account.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, EventRefreshSuccess, true, account.ID, account.Email, nil, nil)

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes the presented refresh token. It always succeeds: a token
// that is malformed, expired, or already revoked leaves nothing to do.
func (e *Engine) Logout(ctx context.Context, refreshToken string) {
	if e == nil {
		return
	}

	e.metricInc(MetricLogout)

	claims, err := e.tokens.Parse(refreshToken, token.TypeRefresh)
	if err != nil {
		e.emitAudit(ctx, EventLogout, true, "", "", nil, nil)
		return
	}

	if err := e.revoked.MarkRevoked(context.WithoutCancel(ctx), refreshToken, remainingLifetime(claims)); err != nil {
		log.Printf("logauth: logout revocation failed: %v", err)
	}
	e.emitAudit(ctx, EventLogout, true, claims.Subject, "", nil, nil)
}

// Authenticate resolves an access token to its account. Tokens issued
// before the account's last password change are rejected even though their
// signature and expiry are fine.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AccountInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.Parse(accessToken, token.TypeAccess)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	account, err := e.store.FindByID(ctx, claims.Subject)
	if err != nil || account == nil {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, storeErr(err)
		}
		return nil, ErrTokenInvalid
	}
	if !account.Active {
		return nil, ErrAccountDisabled
	}
	if issuedBeforePasswordChange(claims, account) {
		return nil, ErrTokenInvalid
	}

	info := account.Info()
	return &info, nil
}

// failLogin records a failed attempt and reports ErrInvalidCredentials. The
// counter write runs detached from the request context: an abandoned request
// still counts.
func (e *Engine) failLogin(ctx context.Context, email, accountID string) error {
	if _, err := e.locks.RecordFailure(context.WithoutCancel(ctx), email); err != nil {
		log.Printf("logauth: lockout record failed: %v", err)
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, EventLoginFailure, false, accountID, email, ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

func (e *Engine) completeLogin(ctx context.Context, account *Account) (*LoginResult, error) {
	if err := e.locks.Reset(context.WithoutCancel(ctx), account.Email); err != nil {
		log.Printf("logauth: lockout reset failed: %v", err)
	}

	access, refresh, err := e.tokens.IssuePair(account.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := e.store.TouchLastLogin(ctx, account.ID, now); err != nil {
		log.Printf("logauth: last-login update failed: %v", err)
	}
	account.LastLoginAt = now

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLoginSuccess, true, account.ID, account.Email, nil, nil)

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Account:      account.Info(),
	}, nil
}

func issuedBeforePasswordChange(claims *token.Claims, account *Account) bool {
	if claims.IssuedAt == nil || account.PasswordChangedAt.IsZero() {
		return false
	}
	return claims.IssuedAt.Time.Before(account.PasswordChangedAt)
}

func remainingLifetime(claims *token.Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	return time.Until(claims.ExpiresAt.Time)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
