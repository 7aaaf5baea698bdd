package logauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/origbo/logware-auth/lockout"
	"github.com/origbo/logware-auth/password"
	"github.com/origbo/logware-auth/revocation"
	"github.com/origbo/logware-auth/token"
)

// Builder assembles an Engine from its dependencies. Use once, then discard.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	store     AccountStore
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. The Builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared Redis client used for lockout state and the
// refresh-token deny-list.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the persistence adapter for accounts.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the audit destination. Ignored unless audit is enabled
// in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires the sub-components, and returns
// a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(cfg.tokenConfig())
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}

	locks, err := lockout.New(b.redis, cfg.lockoutConfig())
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cfg,
		store:   b.store,
		tokens:  tokens,
		hasher:  hasher,
		locks:   locks,
		revoked: revocation.New(b.redis),
		totp:    newTOTPManager(cfg.TOTP),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
