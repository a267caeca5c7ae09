/*
Package config loads the desk's settings.

SOURCES (later wins):
  1. Defaults below
  2. config.yaml in ./configs or . (optional)
  3. Environment, after loading .env if present

Every key has an explicit environment name (see bindEnv), so
backend.base_url is API_BASE_URL rather than BACKEND_BASE_URL.
*/
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Backend     BackendConfig     `mapstructure:"backend"`
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Lockout     LockoutConfig     `mapstructure:"lockout"`
	Display     DisplayConfig     `mapstructure:"display"`
	Enrich      EnrichConfig      `mapstructure:"enrich"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
	Log         LogConfig         `mapstructure:"log"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// TrustedProxies lists proxy IPs or CIDRs whose forwarded-for headers
	// are believed. Empty means clients are keyed by socket address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver"`
	SQLitePath    string        `mapstructure:"sqlite_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AuthConfig struct {
	// JWTSecret verifies viewer tokens. Empty means claims are read
	// without verification and the backend is trusted to reject bad tokens.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type AdminConfig struct {
	PasscodeHash string        `mapstructure:"passcode_hash"`
	TokenSecret  string        `mapstructure:"token_secret"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
}

type LockoutConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Duration    time.Duration `mapstructure:"duration"`
}

type DisplayConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type EnrichConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type EligibilityConfig struct {
	StrictStatus bool `mapstructure:"strict_status"`
}

type DispatchConfig struct {
	// PersistComments posts the action text to the backend's chats after
	// a successful approve or reject.
	PersistComments bool `mapstructure:"persist_comments"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Load reads configuration from the default search paths.
func Load() (*Config, error) {
	return LoadFrom("./configs", ".")
}

// LoadFrom is Load with explicit config.yaml search paths.
func LoadFrom(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	cfg.Server.TrustedProxies = splitList(cfg.Server.TrustedProxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000/api")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", 15*time.Second)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "approvals.db")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.sweep_interval", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("admin.passcode_hash", "")
	v.SetDefault("admin.token_secret", "")
	v.SetDefault("admin.session_ttl", 30*time.Minute)

	v.SetDefault("lockout.max_attempts", 5)
	v.SetDefault("lockout.duration", 15*time.Minute)

	v.SetDefault("display.timezone", "UTC")
	v.SetDefault("enrich.concurrency", 8)
	v.SetDefault("eligibility.strict_status", false)
	v.SetDefault("dispatch.persist_comments", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnv(v *viper.Viper) {
	// Backend
	v.BindEnv("backend.base_url", "API_BASE_URL")
	v.BindEnv("backend.token", "API_TOKEN")
	v.BindEnv("backend.timeout", "API_TIMEOUT")

	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")
	v.BindEnv("server.allowed_origins", "SERVER_ALLOWED_ORIGINS")
	v.BindEnv("server.trusted_proxies", "SERVER_TRUSTED_PROXIES")

	// Store
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.sqlite_path", "SQLITE_PATH")
	v.BindEnv("store.redis_addr", "REDIS_ADDR")
	v.BindEnv("store.redis_password", "REDIS_PASSWORD")
	v.BindEnv("store.redis_db", "REDIS_DB")
	v.BindEnv("store.sweep_interval", "STORE_SWEEP_INTERVAL")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("admin.passcode_hash", "ADMIN_PASSCODE_HASH")
	v.BindEnv("admin.token_secret", "ADMIN_TOKEN_SECRET")
	v.BindEnv("admin.session_ttl", "ADMIN_SESSION_TTL")
	v.BindEnv("lockout.max_attempts", "LOCKOUT_MAX_ATTEMPTS")
	v.BindEnv("lockout.duration", "LOCKOUT_DURATION")

	// Display
	v.BindEnv("display.timezone", "DISPLAY_TIMEZONE")
	v.BindEnv("enrich.concurrency", "ENRICH_CONCURRENCY")
	v.BindEnv("eligibility.strict_status", "ELIGIBILITY_STRICT_STATUS")
	v.BindEnv("dispatch.persist_comments", "DISPATCH_PERSIST_COMMENTS")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
}

// splitList accepts both a YAML list and a comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Admin.PasscodeHash != "" && c.Admin.TokenSecret == "" {
		return errors.New("admin.token_secret is required when admin.passcode_hash is set")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Proxies(); err != nil {
		return err
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port: invalid port %d", c.Server.Port)
	}
	return nil
}

// Location resolves display.timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Display.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return nil, fmt.Errorf("display.timezone: %w", err)
	}
	return loc, nil
}

// Proxies parses server.trusted_proxies. A bare address is a single-host
// prefix.
func (c *Config) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.Server.TrustedProxies))
	for _, raw := range c.Server.TrustedProxies {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: invalid address %q", raw)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// AdminEnabled reports whether the admin passcode gate is configured.
func (c *Config) AdminEnabled() bool {
	return c.Admin.PasscodeHash != ""
}
