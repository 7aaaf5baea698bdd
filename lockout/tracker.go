package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable reports that Redis could not be reached. It is an
// infrastructure failure, never an authentication decision.
var ErrStoreUnavailable = errors.New("lockout store unavailable")

// Config holds lockout tuning parameters.
type Config struct {
	// Threshold is the number of consecutive failures that trips a lock.
	Threshold int
	// LockDuration is how long a tripped lock holds.
	LockDuration time.Duration
	// CounterWindow is how long a failure run stays live without a new
	// failure. Zero defaults to LockDuration.
	CounterWindow time.Duration
}

// DefaultConfig returns the stock 5-attempt / 30-minute policy.
func DefaultConfig() Config {
	return Config{
		Threshold:    5,
		LockDuration: 30 * time.Minute,
	}
}

// Status is the post-attempt state for one identifier.
type Status struct {
	Attempts    int
	LockedUntil time.Time
}

// Locked reports whether the identifier is currently locked out.
func (s Status) Locked() bool {
	return !s.LockedUntil.IsZero() && time.Now().Before(s.LockedUntil)
}

// recordScript is the whole failure-path state machine in one atomic step:
// an active lock short-circuits, a stale counter left behind by an expired
// lock restarts the window at one, and the failure that reaches the
// threshold sets the lock in the same invocation.
var recordScript = redis.NewScript(`
local lockTTL = redis.call('PTTL', KEYS[2])
if lockTTL > 0 then
  local attempts = tonumber(redis.call('GET', KEYS[1]) or '0')
  return {attempts, lockTTL}
end
local attempts = tonumber(redis.call('GET', KEYS[1]) or '0')
if attempts >= tonumber(ARGV[2]) then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[1])
  return {1, 0}
end
attempts = redis.call('INCR', KEYS[1])
if attempts == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
if attempts >= tonumber(ARGV[2]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
  return {attempts, tonumber(ARGV[3])}
end
return {attempts, 0}
`)

// Tracker records failed attempts against the shared Redis store.
type Tracker struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Tracker] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Tracker, error) {
	if cfg.Threshold <= 0 {
		return nil, errors.New("threshold must be positive")
	}
	if cfg.LockDuration <= 0 {
		return nil, errors.New("lock duration must be positive")
	}
	if cfg.CounterWindow <= 0 {
		cfg.CounterWindow = cfg.LockDuration
	}

	return &Tracker{
		redis:  redisClient,
		config: cfg,
	}, nil
}

// RecordFailure registers one failed attempt for the identifier and returns
// the resulting state. If a lock is already active the counter is untouched
// and the returned status carries the remaining lock time.
func (t *Tracker) RecordFailure(ctx context.Context, identifier string) (Status, error) {
	res, err := recordScript.Run(ctx, t.redis,
		[]string{attemptsKey(identifier), lockKey(identifier)},
		t.config.CounterWindow.Milliseconds(),
		t.config.Threshold,
		t.config.LockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return Status{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	status := Status{Attempts: int(res[0])}
	if res[1] > 0 {
		status.LockedUntil = time.Now().Add(time.Duration(res[1]) * time.Millisecond)
	}
	return status, nil
}

// Reset clears the counter and any lock. Called after a successful
// authentication or a completed password reset.
func (t *Tracker) Reset(ctx context.Context, identifier string) error {
	if err := t.redis.Del(ctx, attemptsKey(identifier), lockKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Check returns the current state without recording an attempt.
func (t *Tracker) Check(ctx context.Context, identifier string) (Status, error) {
	lockTTL, err := t.redis.PTTL(ctx, lockKey(identifier)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	attempts, err := t.redis.Get(ctx, attemptsKey(identifier)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Status{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	status := Status{Attempts: int(attempts)}
	if lockTTL > 0 {
		status.LockedUntil = time.Now().Add(lockTTL)
	}
	return status, nil
}

func attemptsKey(identifier string) string {
	return "lockout:attempts:" + identifier
}

func lockKey(identifier string) string {
	return "lockout:lock:" + identifier
}
