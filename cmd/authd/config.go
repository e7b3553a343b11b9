package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	authcore "github.com/retailstack/authcore"
)

// Config is the root configuration for the authd server, loaded from YAML
// with environment overrides for the secrets.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds HTTP listener settings. Timeouts are in seconds.
type ServerConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	ReadTimeout     int    `yaml:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout"`
	IdleTimeout     int    `yaml:"idle_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// AuthConfig selects the engine knobs operators commonly tune. Anything left
// at zero keeps the engine default.
type AuthConfig struct {
	ProductionMode    bool   `yaml:"production_mode"`
	ExposeDebugTokens bool   `yaml:"expose_debug_tokens"`
	JWTSecretKey      string `yaml:"jwt_secret_key"`
	JWTPreviousKey    string `yaml:"jwt_previous_secret_key"`
	JWTIssuer         string `yaml:"jwt_issuer"`
	AccessTTLMinutes  int    `yaml:"access_ttl_minutes"`
	RefreshTTLHours   int    `yaml:"refresh_ttl_hours"`

	RateLimitDisabled bool `yaml:"rate_limit_disabled"`
	LockoutDisabled   bool `yaml:"lockout_disabled"`

	EmailVerificationDisabled bool `yaml:"email_verification_disabled"`

	TOTPIssuer        string `yaml:"totp_issuer"`
	TOTPEncryptionKey string `yaml:"totp_encryption_key"`

	AuditDisabled bool `yaml:"audit_disabled"`

	CleanupDisabled    bool `yaml:"cleanup_disabled"`
	CleanupCutoffHours int  `yaml:"cleanup_cutoff_hours"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:      ":8420",
			ReadTimeout:     15,
			WriteTimeout:    15,
			IdleTimeout:     60,
			ShutdownTimeout: 10,
		},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	if cfg.Auth.JWTSecretKey == "" {
		return nil, fmt.Errorf("auth.jwt_secret_key is required (or AUTHD_JWT_SECRET_KEY)")
	}
	if cfg.Auth.TOTPEncryptionKey == "" {
		return nil, fmt.Errorf("auth.totp_encryption_key is required (or AUTHD_TOTP_ENCRYPTION_KEY)")
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTHD_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("AUTHD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AUTHD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AUTHD_JWT_SECRET_KEY"); v != "" {
		cfg.Auth.JWTSecretKey = v
	}
	if v := os.Getenv("AUTHD_JWT_PREVIOUS_SECRET_KEY"); v != "" {
		cfg.Auth.JWTPreviousKey = v
	}
	if v := os.Getenv("AUTHD_TOTP_ENCRYPTION_KEY"); v != "" {
		cfg.Auth.TOTPEncryptionKey = v
	}
}

// engineConfig projects the daemon settings onto the engine's config,
// keeping engine defaults for anything not set.
func (c *Config) engineConfig() authcore.Config {
	ec := authcore.DefaultConfig()

	ec.JWT.SecretKey = []byte(c.Auth.JWTSecretKey)
	if c.Auth.JWTPreviousKey != "" {
		ec.JWT.PreviousSecretKey = []byte(c.Auth.JWTPreviousKey)
	}
	if c.Auth.JWTIssuer != "" {
		ec.JWT.Issuer = c.Auth.JWTIssuer
	}
	if c.Auth.AccessTTLMinutes > 0 {
		ec.JWT.AccessTTL = time.Duration(c.Auth.AccessTTLMinutes) * time.Minute
	}
	if c.Auth.RefreshTTLHours > 0 {
		ec.Session.RefreshTTL = time.Duration(c.Auth.RefreshTTLHours) * time.Hour
	}

	ec.RateLimit.Enabled = !c.Auth.RateLimitDisabled
	ec.Lockout.Enabled = !c.Auth.LockoutDisabled
	ec.EmailVerification.Enabled = !c.Auth.EmailVerificationDisabled
	ec.Audit.Enabled = !c.Auth.AuditDisabled
	ec.Cleanup.Enabled = !c.Auth.CleanupDisabled
	if c.Auth.CleanupCutoffHours > 0 {
		ec.Cleanup.PendingCutoff = time.Duration(c.Auth.CleanupCutoffHours) * time.Hour
	}

	if c.Auth.TOTPIssuer != "" {
		ec.TOTP.Issuer = c.Auth.TOTPIssuer
	}
	ec.TOTP.SecretEncryptionKey = []byte(c.Auth.TOTPEncryptionKey)

	ec.Security.ProductionMode = c.Auth.ProductionMode
	ec.Security.ExposeDebugTokens = c.Auth.ExposeDebugTokens

	return ec
}
