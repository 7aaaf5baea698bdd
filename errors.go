package logauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// inactive account alike; callers must not be able to tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked reports an active failed-attempt lock.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled reports an operation against a deactivated account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountNotFound reports a lookup miss on an operation that is
	// allowed to reveal existence (authenticated self-service paths only).
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateEmail reports a registration against a taken email.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrRoleInvalid reports an unknown role name.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrRoleNotPermitted reports an attempt to grant a privileged role
	// without an admin actor.
	ErrRoleNotPermitted = errors.New("role not permitted")
	// ErrPasswordPolicy reports a new password failing the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse reports a password change to the current password.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrTokenExpired reports a structurally valid token past expiry.
	// Embedders may branch on the sentinel; the message is identical to
	// ErrTokenInvalid so a client can never tell the two cases apart.
	ErrTokenExpired = errors.New("invalid or expired token")
	// ErrTokenInvalid reports a malformed token, a bad signature, a revoked
	// or superseded token, or a token of the wrong type.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrTwoFactorRequired reports a login that passed the credential check
	// on a 2FA-enabled account and now needs a code.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrTwoFactorInvalid reports a wrong or replay-stale TOTP code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotConfigured reports enable/verify before setup.
	ErrTwoFactorNotConfigured = errors.New("two-factor not configured")
	// ErrTwoFactorAlreadyEnabled reports setup on an enabled account.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrResetInvalid is the single answer for every reset-confirmation
	// failure: unknown, expired, malformed, and already-used tokens.
	ErrResetInvalid = errors.New("password reset token is invalid or has expired")
	// ErrStoreUnavailable reports an infrastructure failure in the shared
	// store or the account store.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrEngineNotReady reports use of an Engine that was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrValidation reports a structurally invalid input.
	ErrValidation = errors.New("validation failed")
)

// LockedError reports a lockout with its expiry so callers can surface the
// remaining time. It matches ErrAccountLocked under errors.Is.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrAccountLocked) hold for *LockedError.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// Kind partitions engine errors into the classes transport adapters map to
// status codes.
type Kind int

const (
	// KindUnknown is any error the engine did not classify.
	KindUnknown Kind = iota
	// KindValidation is a structurally invalid input (422).
	KindValidation
	// KindAuthentication is a failed or missing proof of identity (401).
	KindAuthentication
	// KindAuthorization is a valid identity lacking privilege (403).
	KindAuthorization
	// KindConflict is a uniqueness or state conflict (409).
	KindConflict
	// KindLocked is an active lockout (423).
	KindLocked
	// KindInfrastructure is a retryable backing-store failure (503).
	KindInfrastructure
)

// KindOf classifies err. Unwrapped and unknown errors report KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAccountLocked):
		return KindLocked
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, ErrRoleInvalid):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTwoFactorRequired),
		errors.Is(err, ErrTwoFactorInvalid),
		errors.Is(err, ErrResetInvalid):
		return KindAuthentication
	case errors.Is(err, ErrRoleNotPermitted),
		errors.Is(err, ErrAccountDisabled):
		return KindAuthorization
	case errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrTwoFactorAlreadyEnabled),
		errors.Is(err, ErrTwoFactorNotConfigured):
		return KindConflict
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return KindInfrastructure
	default:
		return KindUnknown
	}
}
