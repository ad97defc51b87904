package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"golang.org/x/crypto/bcrypt"
)

const (
	BlacklistPostgres = "postgres"
	BlacklistRedis    = "redis"

	minJWTSecretLen = 32
)

// Config captures all runtime configuration derived from environment variables.
// It is built once at startup and passed by value; nothing reads the
// environment after Load returns.
type Config struct {
	Port      string `env:"PORT, default=8080"`
	DBURL     string `env:"DB_URL"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	AutoMigrate bool `env:"AUTO_MIGRATE, default=true"`

	ReadTimeoutSecs  int `env:"SERVER_READ_TIMEOUT, default=15"`
	WriteTimeoutSecs int `env:"SERVER_WRITE_TIMEOUT, default=15"`
	IdleTimeoutSecs  int `env:"SERVER_IDLE_TIMEOUT, default=60"`

	DBMaxConns        int `env:"DB_MAX_CONNS, default=20"`
	DBMinConns        int `env:"DB_MIN_CONNS, default=2"`
	DBMaxIdleSecs     int `env:"DB_MAX_CONN_IDLE_SECS, default=300"`
	DBMaxLifeSecs     int `env:"DB_MAX_CONN_LIFETIME_SECS, default=3600"`
	DBConnTimeoutSecs int `env:"DB_CONN_TIMEOUT_SECS, default=10"`
	DBStatementCache  int `env:"DB_STATEMENT_CACHE_CAPACITY, default=256"`

	Auth  AuthConfig
	HTTP  HTTPConfig
	Redis RedisConfig
}

// AuthConfig covers token signing, lifetimes and password hashing.
type AuthConfig struct {
	JWTSecret              string        `env:"JWT_SECRET"`
	AccessTokenTTL         time.Duration `env:"ACCESS_TOKEN_TTL, default=15m"`
	RefreshTokenTTL        time.Duration `env:"REFRESH_TOKEN_TTL, default=24h"`
	BcryptCost             int           `env:"BCRYPT_COST, default=10"`
	BlacklistBackend       string        `env:"BLACKLIST_BACKEND, default=postgres"`
	BlacklistPurgeInterval time.Duration `env:"BLACKLIST_PURGE_INTERVAL, default=1h"`
}

// HTTPConfig covers cross-origin policy and auth cookies.
type HTTPConfig struct {
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=http://localhost:5173"`
	CookieSecure       bool     `env:"COOKIE_SECURE, default=false"`
	CookieDomain       string   `env:"COOKIE_DOMAIN"`
}

// RedisConfig is only consulted when the blacklist backend is redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (cfg Config) Validate() error {
	if cfg.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if cfg.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.Auth.RefreshTokenTTL <= cfg.Auth.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL")
	}
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch strings.ToLower(cfg.Auth.BlacklistBackend) {
	case BlacklistPostgres, BlacklistRedis:
	default:
		return fmt.Errorf("BLACKLIST_BACKEND must be %q or %q", BlacklistPostgres, BlacklistRedis)
	}
	if cfg.Auth.BlacklistPurgeInterval <= 0 {
		return fmt.Errorf("BLACKLIST_PURGE_INTERVAL must be positive")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	return nil
}

// UsesRedisBlacklist reports whether refresh-token revocations live in Redis.
func (cfg Config) UsesRedisBlacklist() bool {
	return strings.EqualFold(cfg.Auth.BlacklistBackend, BlacklistRedis)
}
