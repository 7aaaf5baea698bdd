package logauth

import (
	"context"
	"time"
)

// Role is the account's coarse privilege tier. Full policy mapping lives
// outside this engine; the only decision made here is that privileged
// roles can be granted solely by an admin actor.
type Role string

const (
	// RoleUser is the default self-registration role.
	RoleUser Role = "user"
	// RoleAnalyst is an elevated read role, self-registrable.
	RoleAnalyst Role = "analyst"
	// RoleAdmin can manage accounts and grant privileged roles.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin is the top tier.
	RoleSuperAdmin Role = "superadmin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAnalyst, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Privileged reports whether granting r requires an admin actor.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Account is the engine's view of one stored identity. Secret-bearing
// fields never leave the engine; callers get [AccountInfo].
type Account struct {
	ID                string
	Email             string
	PasswordHash      string
	Role              Role
	Active            bool
	TwoFactorEnabled  bool
	TwoFactorSecret   string
	PasswordChangedAt time.Time
	ResetTokenHash    []byte
	ResetExpiresAt    time.Time
	LastLoginAt       time.Time
	CreatedAt         time.Time
}

// Info returns the sanitized view of the account.
func (a *Account) Info() AccountInfo {
	return AccountInfo{
		ID:               a.ID,
		Email:            a.Email,
		Role:             a.Role,
		Active:           a.Active,
		TwoFactorEnabled: a.TwoFactorEnabled,
		LastLoginAt:      a.LastLoginAt,
		CreatedAt:        a.CreatedAt,
	}
}

// AccountInfo is the account view safe to serialize to clients: no hash,
// no TOTP secret, no reset state.
type AccountInfo struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Role             Role      `json:"role"`
	Active           bool      `json:"active"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	LastLoginAt      time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// AccountStore is the persistence contract the host application implements.
// The engine owns no account storage of its own.
//
// Deactivated accounts are returned by lookups; the engine applies the
// active-only rule itself at every call site so the filter is visible in
// the flow that depends on it. Create must report ErrDuplicateEmail for a
// taken email. ClearResetToken is a compare-and-clear: it must remove the
// reset state only while the stored digest still equals hash, and report
// ErrAccountNotFound otherwise, so a reset token can be consumed exactly
// once. All emails passed in are already lower-cased.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByResetTokenHash(ctx context.Context, hash []byte) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	UpdateTwoFactor(ctx context.Context, id string, enabled bool, secret string) error
	SetResetToken(ctx context.Context, id string, hash []byte, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string, hash []byte) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}

// RegisterInput is the engine-level registration request. ActorRole is the
// role of the authenticated caller, or empty for self-registration.
type RegisterInput struct {
	Email     string
	Password  string
	Role      Role
	ActorRole Role
}

// LoginResult is the outcome of a credential check that did not fail.
// Either both tokens are set, or TwoFactorPending is true and the caller
// must follow up with VerifyTwoFactorLogin.
type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	TwoFactorPending bool
	Account          AccountInfo
}

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TwoFactorSetup is returned by SetupTwoFactor: the shared secret and the
// otpauth:// URI for authenticator enrollment. Enablement stays off until
// the first code is verified.
type TwoFactorSetup struct {
	Secret string
	URI    string
}
