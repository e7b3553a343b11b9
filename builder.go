package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/retailstack/authcore/internal/audit"
	"github.com/retailstack/authcore/internal/limiters"
	"github.com/retailstack/authcore/internal/otoken"
	"github.com/retailstack/authcore/internal/rate"
	"github.com/retailstack/authcore/jwt"
	"github.com/retailstack/authcore/logging"
	"github.com/retailstack/authcore/password"
	"github.com/retailstack/authcore/session"
)

// Builder assembles an [Engine]. A Builder is single-use: Build succeeds at
// most once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore UserStore
	auditSink AuditSink
	mailer    Mailer
	logger    logging.Logger

	built bool
}

// NewBuilder returns a Builder primed with [DefaultConfig].
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The config is cloned; later
// mutations of cfg by the caller have no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing sessions, limiters, one-time
// tokens, and MFA challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore supplies the authoritative credential store.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithAuditSink supplies the audit event consumer. Without one, audit events
// are dropped.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMailer supplies the outbound email transport for verification and
// reset tokens. Default is [NoOpMailer].
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithLogger supplies the structured logger. Default discards everything.
func (b *Builder) WithLogger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the configuration, wires every component, and returns the
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		userStore: b.userStore,
	}

	engine.logger = b.logger
	if engine.logger == nil {
		engine.logger = logging.Nop{}
	}
	engine.mailer = b.mailer
	if engine.mailer == nil {
		engine.mailer = NoOpMailer{}
	}

	engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix)
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		Enabled:     cfg.RateLimit.Enabled,
		Window:      cfg.RateLimit.Window,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
	})
	engine.lockout = limiters.NewLockout(b.redis, limiters.LockoutConfig{
		Enabled:     cfg.Lockout.Enabled,
		MaxFailures: cfg.Lockout.MaxFailures,
		Window:      cfg.Lockout.Window,
		Cooldown:    cfg.Lockout.Cooldown,
	})
	engine.verifyThrottle = limiters.NewRequestThrottle(b.redis, limiters.RequestThrottleConfig{
		Purpose:     string(otoken.PurposeEmailVerification),
		Window:      cfg.EmailVerification.RequestCooldown,
		MaxRequests: cfg.EmailVerification.RequestMaxRate,
	})
	engine.resetThrottle = limiters.NewRequestThrottle(b.redis, limiters.RequestThrottleConfig{
		Purpose:     string(otoken.PurposePasswordReset),
		Window:      cfg.PasswordReset.RequestCooldown,
		MaxRequests: cfg.PasswordReset.RequestMaxRate,
	})
	engine.tokens = otoken.NewStore(b.redis)
	engine.mfaChallenges = newMFAChallengeStore(b.redis)
	engine.audit = internalaudit.NewDispatcher(cfg.Audit.Enabled, cfg.Audit.BufferSize, cfg.Audit.DropIfFull, b.auditSink)
	engine.totp = newTOTPManager(cfg.TOTP)

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:         cfg.JWT.AccessTTL,
		Issuer:            cfg.JWT.Issuer,
		SecretKey:         cloneBytes(cfg.JWT.SecretKey),
		PreviousSecretKey: cloneBytes(cfg.JWT.PreviousSecretKey),
		Leeway:            cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
