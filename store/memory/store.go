// Package memory is an in-process AccountStore used by tests and examples.
// It mirrors the contract of the real adapters, including duplicate-email
// detection and not-found errors, but keeps everything in a map.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	logauth "github.com/origbo/logware-auth"
)

// Store is a mutex-guarded map of accounts keyed by ID.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*logauth.Account
	byEmail  map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*logauth.Account),
		byEmail:  make(map[string]string),
	}
}

// FindByEmail looks an account up by its lower-cased email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*logauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, logauth.ErrAccountNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

// FindByID looks an account up by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*logauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, logauth.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

// FindByResetTokenHash looks an account up by its stored reset digest.
func (s *Store) FindByResetTokenHash(ctx context.Context, hash []byte) (*logauth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if len(account.ResetTokenHash) > 0 && bytes.Equal(account.ResetTokenHash, hash) {
			return cloneAccount(account), nil
		}
	}
	return nil, logauth.ErrAccountNotFound
}

// Create inserts the account, rejecting a taken email.
func (s *Store) Create(ctx context.Context, account *logauth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[account.Email]; taken {
		return logauth.ErrDuplicateEmail
	}

	stored := cloneAccount(account)
	s.accounts[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	return nil
}

// UpdatePassword replaces the hash and bumps the change timestamp.
func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	return s.update(id, func(a *logauth.Account) {
		a.PasswordHash = passwordHash
		a.PasswordChangedAt = changedAt
	})
}

// UpdateTwoFactor sets the enablement flag and secret together.
func (s *Store) UpdateTwoFactor(ctx context.Context, id string, enabled bool, secret string) error {
	return s.update(id, func(a *logauth.Account) {
		a.TwoFactorEnabled = enabled
		a.TwoFactorSecret = secret
	})
}

// SetResetToken stores the reset digest and expiry.
func (s *Store) SetResetToken(ctx context.Context, id string, hash []byte, expiresAt time.Time) error {
	return s.update(id, func(a *logauth.Account) {
		a.ResetTokenHash = append([]byte(nil), hash...)
		a.ResetExpiresAt = expiresAt
	})
}

// ClearResetToken removes the reset state while the stored digest still
// equals hash. A mismatch means the token was already consumed or replaced
// and reports ErrAccountNotFound.
func (s *Store) ClearResetToken(ctx context.Context, id string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok || !bytes.Equal(account.ResetTokenHash, hash) {
		return logauth.ErrAccountNotFound
	}
	account.ResetTokenHash = nil
	account.ResetExpiresAt = time.Time{}
	return nil
}

// TouchLastLogin records a successful login time.
func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(a *logauth.Account) {
		a.LastLoginAt = at
	})
}

// SetActive flips the logical-delete flag.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(id, func(a *logauth.Account) {
		a.Active = active
	})
}

func (s *Store) update(id string, fn func(*logauth.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return logauth.ErrAccountNotFound
	}
	fn(account)
	return nil
}

func cloneAccount(a *logauth.Account) *logauth.Account {
	out := *a
	out.ResetTokenHash = append([]byte(nil), a.ResetTokenHash...)
	return &out
}
