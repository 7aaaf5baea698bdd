package password

import (
	"context"
	"strings"
	"testing"
)

func newTestHasher(t *testing.T, cost int) *Hasher {
	t.Helper()

	// MinCost keeps the test fast; the engine uses the real default.
	h, err := NewHasher(Config{Cost: cost})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func TestHashVerifyRoundtrip(t *testing.T) {
	h := newTestHasher(t, 4)
	ctx := context.Background()

	hash, err := h.Hash(ctx, "correct-password-123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Fatalf("expected bcrypt hash, got %q", hash)
	}

	if !h.Verify(ctx, "correct-password-123", hash) {
		t.Fatal("expected matching password to verify")
	}
	if h.Verify(ctx, "wrong-password-456", hash) {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestVerifyMalformedHashIsFailureNotError(t *testing.T) {
	h := newTestHasher(t, 4)
	ctx := context.Background()

	for _, hash := range []string{"", "not-a-hash", "$argon2id$v=19$m=65536,t=3,p=2$abc$def"} {
		if h.Verify(ctx, "anything", hash) {
			t.Fatalf("expected verification failure for hash %q", hash)
		}
	}
}

func TestHashRejectsEmptyAndOverlongPasswords(t *testing.T) {
	h := newTestHasher(t, 4)
	ctx := context.Background()

	if _, err := h.Hash(ctx, ""); err == nil {
		t.Fatal("expected error for empty password")
	}
	if _, err := h.Hash(ctx, strings.Repeat("x", 73)); err == nil {
		t.Fatal("expected error for password over 72 bytes")
	}
}

func TestNeedsRehash(t *testing.T) {
	low := newTestHasher(t, 4)
	high := newTestHasher(t, 6)
	ctx := context.Background()

	hash, err := low.Hash(ctx, "correct-password-123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if low.NeedsRehash(hash) {
		t.Fatal("expected no rehash at same cost")
	}
	if !high.NeedsRehash(hash) {
		t.Fatal("expected rehash when configured cost increased")
	}
	if high.NeedsRehash("not-a-hash") {
		t.Fatal("expected no rehash signal for malformed hash")
	}
}

func TestNewHasherRejectsBadCost(t *testing.T) {
	if _, err := NewHasher(Config{Cost: 2}); err == nil {
		t.Fatal("expected error for cost below bcrypt minimum")
	}
	if _, err := NewHasher(Config{Cost: 40}); err == nil {
		t.Fatal("expected error for cost above bcrypt maximum")
	}
}
