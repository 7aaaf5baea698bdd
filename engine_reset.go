package logauth

import (
	"context"
	"errors"
	"time"

	"github.com/origbo/logware-auth/internal"
)

// RequestPasswordReset issues a single-use reset token for the email. The
// plaintext token is returned for out-of-band delivery; only its SHA-256
// digest and expiry are persisted. An unknown or deactivated email returns
// an empty token and no error so the caller cannot be used as an account
// oracle.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return "", nil
	}

	account, err := e.store.FindByEmail(ctx, email)
	if err != nil || account == nil || !account.Active {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return "", storeErr(err)
		}
		return "", nil
	}

	plaintext, digest, err := internal.NewResetToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(e.config.Reset.TTL)
	if err := e.store.SetResetToken(ctx, account.ID, digest[:], expiresAt); err != nil {
		return "", storeErr(err)
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, EventResetRequested, true, account.ID, email, nil, nil)

	return plaintext, nil
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
// Every failure mode reports the single ErrResetInvalid: a caller probing
// tokens learns nothing about which check rejected it. A consumed token is
// cleared before anything else can use it, tokens issued before the change
// stop authenticating, and the account's lockout state is reset.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, tokenPlaintext, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	if err := internal.ValidateResetToken(tokenPlaintext); err != nil {
		e.failReset(ctx, "", "")
		return ErrResetInvalid
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	digest := internal.HashToken(tokenPlaintext)
	account, err := e.store.FindByResetTokenHash(ctx, digest[:])
	if err != nil || account == nil || !account.Active {
		if err != nil && !errors.Is(err, ErrAccountNotFound) {
			return storeErr(err)
		}
		e.failReset(ctx, "", "")
		return ErrResetInvalid
	}

	if len(account.ResetTokenHash) != 32 ||
		!internal.DigestsEqual(digest, [32]byte(account.ResetTokenHash)) ||
		account.ResetExpiresAt.IsZero() ||
		time.Now().After(account.ResetExpiresAt) {
		e.failReset(ctx, account.ID, account.Email)
		return ErrResetInvalid
	}

	hash, err := e.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	// Single use: the compare-and-clear is the consumption point. Of two
	// concurrent confirmations that both found the account, only the one
	// that clears the still-matching digest proceeds; the other sees the
	// digest gone and fails like any bad token.
	if err := e.store.ClearResetToken(ctx, account.ID, digest[:]); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.failReset(ctx, account.ID, account.Email)
			return ErrResetInvalid
		}
		return storeErr(err)
	}
	if err := e.store.UpdatePassword(ctx, account.ID, hash, time.Now()); err != nil {
		return storeErr(err)
	}

	// best effort; the password change alone already restores access
	_ = e.locks.Reset(context.WithoutCancel(ctx), account.Email)

	e.metricInc(MetricResetSuccess)
	e.emitAudit(ctx, EventResetConfirmed, true, account.ID, account.Email, nil, nil)

	return nil
}

func (e *Engine) failReset(ctx context.Context, accountID, email string) {
	e.metricInc(MetricResetFailure)
	e.emitAudit(ctx, EventResetFailure, false, accountID, email, ErrResetInvalid, nil)
}
