package logauth

import (
	"errors"
	"time"

	"github.com/origbo/logware-auth/lockout"
	"github.com/origbo/logware-auth/password"
	"github.com/origbo/logware-auth/token"
)

// Config is the full engine configuration. Populate it once, hand it to the
// Builder, and treat it as immutable afterwards; Build keeps its own copy.
type Config struct {
	Token    TokenConfig
	Password PasswordConfig
	Lockout  LockoutConfig
	TOTP     TOTPConfig
	Reset    ResetConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// TokenConfig feeds the token issuer.
type TokenConfig struct {
	SigningMethod token.SigningMethod
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

// PasswordConfig feeds the hasher and the length policy enforced on every
// password-accepting operation.
type PasswordConfig struct {
	Cost          int
	MaxConcurrent int
	MinLength     int
	MaxLength     int
}

// LockoutConfig feeds the failed-attempt tracker.
type LockoutConfig struct {
	Threshold     int
	LockDuration  time.Duration
	CounterWindow time.Duration
}

// TOTPConfig feeds the two-factor code manager.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// ResetConfig governs the password-reset token lifecycle.
type ResetConfig struct {
	TTL time.Duration
}

// AuditConfig governs the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig governs the in-process counters.
type MetricsConfig struct {
	Enabled                bool
	EnableLatencyHistogram bool
}

// DefaultConfig returns the stock policy: 15m/7d tokens, bcrypt cost 12,
// 5 attempts / 30m lockout, 6-digit 30s TOTP with one step of skew, and
// 10-minute reset tokens. The signing secret is the one field with no
// usable default.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: token.MethodHS256,
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Cost:      password.DefaultCost,
			MinLength: 8,
			MaxLength: 72,
		},
		Lockout: LockoutConfig{
			Threshold:    5,
			LockDuration: 30 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer: "logware",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		Reset: ResetConfig{
			TTL: 10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                true,
			EnableLatencyHistogram: true,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be > 0")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	switch c.Token.SigningMethod {
	case token.MethodHS256, "":
		if len(c.Token.Secret) < 32 {
			return errors.New("hs256 requires a secret of at least 32 bytes")
		}
	case token.MethodEd25519:
		if len(c.Token.PrivateKey) == 0 || len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires both keys")
		}
	default:
		return errors.New("unsupported signing method")
	}

	if c.Password.MinLength < 8 {
		return errors.New("password MinLength must be >= 8")
	}
	if c.Password.MaxLength < c.Password.MinLength || c.Password.MaxLength > 72 {
		return errors.New("password MaxLength must be within [MinLength, 72]")
	}

	if c.Lockout.Threshold <= 0 {
		return errors.New("lockout Threshold must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("lockout LockDuration must be > 0")
	}

	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be 0, 1, or 2")
	}

	if c.Reset.TTL <= 0 || c.Reset.TTL > time.Hour {
		return errors.New("reset TTL must be within (0, 1h]")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c *Config) tokenConfig() token.Config {
	return token.Config{
		SigningMethod: c.Token.SigningMethod,
		Secret:        c.Token.Secret,
		PrivateKey:    c.Token.PrivateKey,
		PublicKey:     c.Token.PublicKey,
		Issuer:        c.Token.Issuer,
		AccessTTL:     c.Token.AccessTTL,
		RefreshTTL:    c.Token.RefreshTTL,
		Leeway:        c.Token.Leeway,
	}
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Cost:          c.Password.Cost,
		MaxConcurrent: c.Password.MaxConcurrent,
	}
}

func (c *Config) lockoutConfig() lockout.Config {
	return lockout.Config{
		Threshold:     c.Lockout.Threshold,
		LockDuration:  c.Lockout.LockDuration,
		CounterWindow: c.Lockout.CounterWindow,
	}
}
