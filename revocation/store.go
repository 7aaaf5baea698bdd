package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable reports that Redis could not be reached.
var ErrStoreUnavailable = errors.New("revocation store unavailable")

// opTimeout bounds every Redis round trip so a slow store cannot stall the
// refresh path indefinitely.
const opTimeout = 2 * time.Second

// Store is the Redis-backed refresh-token deny-list.
type Store struct {
	redis redis.UniversalClient
}

// New creates a [Store] backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Store {
	return &Store{redis: redisClient}
}

// MarkRevoked adds the token to the deny-list for ttl. Revoking an
// already-revoked token is a no-op, not an error.
func (s *Store) MarkRevoked(ctx context.Context, tokenValue string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.redis.SetNX(ctx, revokedKey(tokenValue), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token is on the deny-list.
func (s *Store) IsRevoked(ctx context.Context, tokenValue string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.redis.Exists(ctx, revokedKey(tokenValue)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Token values never touch Redis in the clear.
func revokedKey(tokenValue string) string {
	sum := sha256.Sum256([]byte(tokenValue))
	return "revoked:refresh:" + hex.EncodeToString(sum[:])
}
