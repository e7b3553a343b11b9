package authcore

import (
	"errors"
	"time"
)

// Config groups all engine tuning. Obtain a baseline from [DefaultConfig],
// adjust, and pass to [Builder.WithConfig]. The builder clones the config;
// mutations after Build have no effect.
type Config struct {
	JWT               JWTConfig
	Session           SessionConfig
	Password          PasswordConfig
	RateLimit         RateLimitConfig
	Lockout           LockoutConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	TOTP              TOTPConfig
	Audit             AuditConfig
	Security          SecurityConfig
	Cleanup           CleanupConfig
}

// JWTConfig controls the signed access-token codec.
//
// PreviousSecretKey supports signing-key rotation: tokens signed with the old
// key keep verifying for their (short) lifetime while new tokens are signed
// with SecretKey.
type JWTConfig struct {
	AccessTTL         time.Duration
	Issuer            string
	SecretKey         []byte
	PreviousSecretKey []byte
	Leeway            time.Duration
}

// SessionConfig controls the refresh-session registry.
type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
}

// PasswordConfig carries the argon2id parameters and the password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// RateLimitConfig tunes the sliding-window guard keyed by (client IP,
// claimed identity). It fires before any password work happens.
type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxAttempts int
}

// LockoutConfig tunes the per-user escalating lockout. It is deliberately
// independent from RateLimitConfig: the lockout counts failures across all
// source IPs.
type LockoutConfig struct {
	Enabled     bool
	MaxFailures int
	// Window bounds how long failed attempts accumulate before the counter
	// lapses on its own.
	Window   time.Duration
	Cooldown time.Duration
}

// EmailVerificationConfig controls the verification one-time-token flow.
// When Enabled is false, accounts are created with email_verified already
// set and the request endpoint is a success-shaped no-op.
type EmailVerificationConfig struct {
	Enabled         bool
	TokenTTL        time.Duration
	RequestMaxRate  int
	RequestCooldown time.Duration
}

// PasswordResetConfig controls the reset one-time-token flow.
type PasswordResetConfig struct {
	TokenTTL        time.Duration
	RequestMaxRate  int
	RequestCooldown time.Duration
}

// TOTPConfig controls multi-factor authentication. SecretEncryptionKey must
// be 16, 24, or 32 bytes; TOTP secrets are stored AES-GCM encrypted under it.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	// Skew is the clock-drift tolerance in time steps on each side of now.
	Skew                 int
	SecretEncryptionKey  []byte
	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int
}

// AuditConfig controls the async audit dispatcher buffering.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// SecurityConfig carries the deployment posture switches.
type SecurityConfig struct {
	// ProductionMode forces ExposeDebugTokens off regardless of its value.
	ProductionMode    bool
	ExposeDebugTokens bool
}

// CleanupConfig feeds the background [Sweeper]. The engine itself consumes
// cutoffs as parameters; this section only configures the periodic runner.
type CleanupConfig struct {
	Enabled       bool
	Interval      time.Duration
	PendingCutoff time.Duration
}

// DefaultConfig returns the baseline configuration. The three secrets
// (JWT.SecretKey, TOTP.SecretEncryptionKey) are intentionally absent and
// must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Issuer:    "authcore",
			Leeway:    30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
			RefreshTTL:  14 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Window:      15 * time.Minute,
			MaxAttempts: 5,
		},
		Lockout: LockoutConfig{
			Enabled:     true,
			MaxFailures: 5,
			Window:      30 * time.Minute,
			Cooldown:    15 * time.Minute,
		},
		EmailVerification: EmailVerificationConfig{
			Enabled:         true,
			TokenTTL:        30 * time.Minute,
			RequestMaxRate:  3,
			RequestCooldown: 15 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:        30 * time.Minute,
			RequestMaxRate:  3,
			RequestCooldown: 15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:               "authcore",
			Digits:               6,
			Period:               30,
			Skew:                 1,
			ChallengeTTL:         5 * time.Minute,
			ChallengeMaxAttempts: 5,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: false,
		},
		Security: SecurityConfig{
			ProductionMode:    false,
			ExposeDebugTokens: false,
		},
		Cleanup: CleanupConfig{
			Enabled:       true,
			Interval:      30 * time.Minute,
			PendingCutoff: 72 * time.Hour,
		},
	}
}

// Validate checks invariants that would otherwise surface as hard-to-trace
// runtime failures.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if len(c.JWT.SecretKey) < 32 {
		return errors.New("JWT.SecretKey must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT.Leeway must be within [0, 2m]")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session.RefreshTTL must exceed JWT.AccessTTL")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session.RedisPrefix must be set")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password.MinLength must be at least 8")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 || c.RateLimit.MaxAttempts <= 0 {
			return errors.New("RateLimit requires positive Window and MaxAttempts")
		}
	}
	if c.Lockout.Enabled {
		if c.Lockout.MaxFailures <= 0 || c.Lockout.Cooldown <= 0 || c.Lockout.Window <= 0 {
			return errors.New("Lockout requires positive MaxFailures, Window, and Cooldown")
		}
	}
	if c.EmailVerification.Enabled && c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification.TokenTTL must be positive")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset.TokenTTL must be positive")
	}
	switch len(c.TOTP.SecretEncryptionKey) {
	case 16, 24, 32:
	default:
		return errors.New("TOTP.SecretEncryptionKey must be 16, 24, or 32 bytes")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP.Digits must be within [6, 8]")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP.Period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP.Skew must be within [0, 2]")
	}
	if c.TOTP.ChallengeTTL <= 0 || c.TOTP.ChallengeMaxAttempts <= 0 {
		return errors.New("TOTP challenge settings must be positive")
	}
	if c.Cleanup.Enabled && (c.Cleanup.Interval <= 0 || c.Cleanup.PendingCutoff <= 0) {
		return errors.New("Cleanup requires positive Interval and PendingCutoff")
	}
	return nil
}

// exposeDebugTokens resolves the posture: debug exposure never survives
// production mode.
func (c Config) exposeDebugTokens() bool {
	return c.Security.ExposeDebugTokens && !c.Security.ProductionMode
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SecretKey = cloneBytes(cfg.JWT.SecretKey)
	out.JWT.PreviousSecretKey = cloneBytes(cfg.JWT.PreviousSecretKey)
	out.TOTP.SecretEncryptionKey = cloneBytes(cfg.TOTP.SecretEncryptionKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
