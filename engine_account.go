package logauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Register creates an account. Privileged roles (admin, superadmin) can
// only be granted when input.ActorRole is itself admin or superadmin;
// everything else is decided outside this engine.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*AccountInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, ErrValidation
	}
	if err := e.checkPasswordPolicy(input.Password); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, ErrRoleInvalid
	}
	if role.Privileged() && !input.ActorRole.Privileged() {
		return nil, ErrRoleNotPermitted
	}

	hash, err := e.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &Account{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      hash,
		Role:              role,
		Active:            true,
		PasswordChangedAt: now,
		CreatedAt:         now,
	}

	if err := e.store.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, EventRegister, false, "", email, ErrDuplicateEmail, nil)
			return nil, ErrDuplicateEmail
		}
		return nil, storeErr(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, EventRegister, true, account.ID, email, nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})

	info := account.Info()
	return &info, nil
}

// ChangePassword replaces the password of an authenticated account. The
// current password must verify and the new one must differ from it. Tokens
// issued before the change stop authenticating, and any pending lockout
// state for the account is cleared.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil || account == nil {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return storeErr(err)
		}
		return ErrAccountNotFound
	}
	if !account.Active {
		return ErrAccountDisabled
	}

	if !e.hasher.Verify(ctx, current, account.PasswordHash) {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, EventPasswordChange, false, account.ID, account.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if err := e.checkPasswordPolicy(next); err != nil {
		return err
	}
	if current == next {
		e.metricInc(MetricPasswordChangeRejected)
		e.emitAudit(ctx, EventPasswordChange, false, account.ID, account.Email, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}

	if err := e.store.UpdatePassword(ctx, account.ID, hash, time.Now()); err != nil {
		return storeErr(err)
	}

	// best effort: a stale counter only shortens the failure budget
	_ = e.locks.Reset(context.WithoutCancel(ctx), account.Email)

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, EventPasswordChange, true, account.ID, account.Email, nil, nil)

	return nil
}

// Account returns the sanitized view of an account for self-service reads.
func (e *Engine) Account(ctx context.Context, accountID string) (*AccountInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil || account == nil {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return nil, storeErr(err)
		}
		return nil, ErrAccountNotFound
	}
	if !account.Active {
		return nil, ErrAccountDisabled
	}

	info := account.Info()
	return &info, nil
}

// Deactivate logically deletes an account. The record stays in the store
// with Active=false; every authentication path refuses it from then on.
func (e *Engine) Deactivate(ctx context.Context, accountID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil || account == nil {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return storeErr(err)
		}
		return ErrAccountNotFound
	}

	if err := e.store.SetActive(ctx, account.ID, false); err != nil {
		return storeErr(err)
	}

	e.emitAudit(ctx, EventAccountDisabled, true, account.ID, account.Email, nil, nil)
	return nil
}

func (e *Engine) checkPasswordPolicy(plaintext string) error {
	if len(plaintext) < e.config.Password.MinLength || len(plaintext) > e.config.Password.MaxLength {
		return ErrPasswordPolicy
	}
	return nil
}
