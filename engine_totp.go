package logauth

import (
	"context"
	"errors"
	"time"
)

// SetupTwoFactor generates a fresh TOTP secret for the account and stores
// it with enablement still off. The caller shows the returned URI to the
// user; nothing changes at login until EnableTwoFactor verifies a code.
// Calling setup again before enablement replaces the pending secret.
func (e *Engine) SetupTwoFactor(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}

	_, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	if err := e.store.UpdateTwoFactor(ctx, account.ID, false, secretBase32); err != nil {
		return nil, storeErr(err)
	}

	e.emitAudit(ctx, EventTwoFactorSetup, true, account.ID, account.Email, nil, nil)

	return &TwoFactorSetup{
		Secret: secretBase32,
		URI:    e.totp.ProvisionURI(secretBase32, account.Email),
	}, nil
}

// EnableTwoFactor turns enforcement on after the user proves possession of
// the pending secret with a live code.
func (e *Engine) EnableTwoFactor(ctx context.Context, accountID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	account, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if account.TwoFactorSecret == "" {
		return ErrTwoFactorNotConfigured
	}

	ok, err := e.verifyAccountCode(account, code)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, EventTwoFactorFailure, false, account.ID, account.Email, ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}

	if err := e.store.UpdateTwoFactor(ctx, account.ID, true, account.TwoFactorSecret); err != nil {
		return storeErr(err)
	}

	e.emitAudit(ctx, EventTwoFactorEnabled, true, account.ID, account.Email, nil, nil)
	return nil
}

// DisableTwoFactor turns enforcement off. A live code is required so a
// stolen session alone cannot weaken the account, and the secret is cleared
// so re-enabling starts from a fresh setup.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, code string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	account, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled || account.TwoFactorSecret == "" {
		return ErrTwoFactorNotConfigured
	}

	ok, err := e.verifyAccountCode(account, code)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, EventTwoFactorFailure, false, account.ID, account.Email, ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}

	if err := e.store.UpdateTwoFactor(ctx, account.ID, false, ""); err != nil {
		return storeErr(err)
	}

	e.emitAudit(ctx, EventTwoFactorDisabled, true, account.ID, account.Email, nil, nil)
	return nil
}

func (e *Engine) verifyAccountCode(account *Account, code string) (bool, error) {
	secret, err := e.totp.DecodeSecret(account.TwoFactorSecret)
	if err != nil {
		return false, ErrTwoFactorNotConfigured
	}
	return e.totp.VerifyCode(secret, code, time.Now())
}

func (e *Engine) activeAccount(ctx context.Context, accountID string) (*Account, error) {
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
	return account, nil
}
