package password

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultCost targets roughly 100ms per hash on current server CPUs.
	DefaultCost = 12

	// bcrypt silently truncates beyond 72 bytes; reject instead.
	maxPasswordBytes = 72
)

var errPasswordTooLong = errors.New("password exceeds 72 bytes")

// Config holds hasher tuning parameters.
type Config struct {
	Cost          int
	MaxConcurrent int
}

// Hasher wraps bcrypt hash and verify behind a concurrency gate.
// A zero MaxConcurrent defaults to twice the CPU count.
type Hasher struct {
	cost int
	gate *semaphore.Weighted
}

// NewHasher validates cfg and returns a ready Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Cost == 0 {
		cfg.Cost = DefaultCost
	}
	if cfg.Cost < bcrypt.MinCost || cfg.Cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2 * runtime.NumCPU()
	}

	return &Hasher{
		cost: cfg.Cost,
		gate: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Hash derives a bcrypt hash of plaintext at the configured cost.
// It blocks while the concurrency gate is saturated and honors ctx
// cancellation while waiting (never mid-hash).
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("empty password")
	}
	if len(plaintext) > maxPasswordBytes {
		return "", errPasswordTooLong
	}

	if err := h.gate.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.gate.Release(1)

	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plaintext matches the stored hash. A malformed or
// foreign-format hash is a verification failure, never an error: callers in
// the login path must not be able to distinguish the two.
func (h *Hasher) Verify(ctx context.Context, plaintext, hash string) bool {
	if plaintext == "" || hash == "" {
		return false
	}

	if err := h.gate.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.gate.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// NeedsRehash reports whether the stored hash was produced at a lower cost
// than currently configured and should be upgraded on next successful login.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost < h.cost
}
