// Package config provides configuration management for the Vehix API server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	APIKey     APIKeyConfig     `mapstructure:"apikey"`
	Admin      AdminConfig      `mapstructure:"admin"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds key store connection settings.
// Supports MongoDB, PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "mongo", "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`

	// MongoDB settings (used when Driver is "mongo")
	URI            string        `mapstructure:"uri"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`

	// Enabled selects the Redis cache. When false an in-process cache is used,
	// which only works for a single server instance.
	Enabled bool `mapstructure:"enabled"`

	// ConfigureNotifications issues CONFIG SET notify-keyspace-events at startup
	// so that marker expirations are published.
	ConfigureNotifications bool `mapstructure:"configure_notifications"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// APIKeyConfig holds API key gateway settings.
type APIKeyConfig struct {
	// HeaderName is the request header carrying the external key.
	HeaderName string `mapstructure:"header_name"`

	// CacheTTL is the lifetime of a cached usage hash.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// MarkerMargin is subtracted from CacheTTL to get the marker lifetime.
	// The marker must expire while the hash is still readable.
	MarkerMargin time.Duration `mapstructure:"marker_margin"`

	// StoreTimeout bounds key store calls made on the request path.
	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	// KeyLifetime is how long a newly issued public key stays valid.
	KeyLifetime time.Duration `mapstructure:"key_lifetime"`

	// VerificationTTL is how long an emailed verification token is accepted.
	VerificationTTL time.Duration `mapstructure:"verification_ttl"`

	Frontend FrontendConfig `mapstructure:"frontend"`
}

// FrontendConfig identifies the first-party frontend client.
type FrontendConfig struct {
	// Origin is the value the Origin header must carry.
	Origin string `mapstructure:"origin"`

	Username string `mapstructure:"username"`
	UserID   string `mapstructure:"user_id"`
	Email    string `mapstructure:"email"`

	// Key is the full external frontend key. It is hashed into the key store
	// at bootstrap.
	Key string `mapstructure:"key"`
}

// AdminConfig holds the bootstrap administrator credentials.
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// JWTConfig holds admin session token settings.
type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	Issuer            string        `mapstructure:"issuer"`
	Audience          string        `mapstructure:"audience"`
	AccessTTL         time.Duration `mapstructure:"access_ttl"`
	RefreshTTL        time.Duration `mapstructure:"refresh_ttl"`
	AccessCookieName  string        `mapstructure:"access_cookie_name"`
	RefreshCookieName string        `mapstructure:"refresh_cookie_name"`
	SecureCookies     bool          `mapstructure:"secure_cookies"`
}

// ReconcilerConfig holds expiration reconciler settings.
type ReconcilerConfig struct {
	// Concurrency is the maximum number of expirations reconciled at once.
	Concurrency int `mapstructure:"concurrency"`

	// Timeout bounds a single reconciliation.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the port for the metrics HTTP server.
	// Zero serves metrics on the main listener.
	Port int `mapstructure:"port"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled determines if rate limiting is active.
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerMinute is the number of requests allowed per client per window.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`

	// Window is the rate limit window.
	Window time.Duration `mapstructure:"window"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values.
// Environment variables are prefixed with VEHIX_ and use _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("VEHIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vehix")
	}

	// Read config file (optional - environment variables can be used instead)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_size", 10*1024*1024) // 10MB

	// Database defaults
	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "vehix")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "vehix")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	// SQLite defaults
	v.SetDefault("database.path", "./data/vehix.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("database.cache_size", -2000)
	v.SetDefault("database.synchronous_mode", "NORMAL")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.configure_notifications", true)

	// API key defaults
	v.SetDefault("apikey.header_name", "X-API-KEY")
	v.SetDefault("apikey.cache_ttl", 15*time.Minute)
	v.SetDefault("apikey.marker_margin", 5*time.Minute)
	v.SetDefault("apikey.store_timeout", 5*time.Second)
	v.SetDefault("apikey.key_lifetime", 30*24*time.Hour)
	v.SetDefault("apikey.verification_ttl", 15*time.Minute)
	v.SetDefault("apikey.frontend.origin", "")
	v.SetDefault("apikey.frontend.username", "")
	v.SetDefault("apikey.frontend.user_id", "")
	v.SetDefault("apikey.frontend.email", "")
	v.SetDefault("apikey.frontend.key", "")

	// Admin defaults
	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")

	// JWT defaults
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "vehix")
	v.SetDefault("jwt.audience", "vehix-admin")
	v.SetDefault("jwt.access_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 24*time.Hour)
	v.SetDefault("jwt.access_cookie_name", "VHATfU")
	v.SetDefault("jwt.refresh_cookie_name", "VHRTDfB")
	v.SetDefault("jwt.secure_cookies", true)

	// Reconciler defaults
	v.SetDefault("reconciler.concurrency", 8)
	v.SetDefault("reconciler.timeout", 10*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 0)
	v.SetDefault("metrics.path", "/metrics")

	// Rate limiting defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("rate_limit.window", time.Minute)
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate database configuration
	validDrivers := map[string]bool{"mongo": true, "postgres": true, "sqlite": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be 'mongo', 'postgres' or 'sqlite'")
	}

	switch c.Database.Driver {
	case "mongo":
		if c.Database.URI == "" {
			return fmt.Errorf("database.uri is required for mongo driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for mongo driver")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for postgres driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for postgres driver")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite driver")
		}
	}

	// Validate API key configuration
	if c.APIKey.HeaderName == "" {
		return fmt.Errorf("apikey.header_name is required")
	}
	if c.APIKey.MarkerMargin <= 0 {
		return fmt.Errorf("apikey.marker_margin must be positive")
	}
	if c.APIKey.CacheTTL <= c.APIKey.MarkerMargin {
		return fmt.Errorf("apikey.cache_ttl must be greater than apikey.marker_margin")
	}
	if c.APIKey.StoreTimeout <= 0 {
		return fmt.Errorf("apikey.store_timeout must be positive")
	}

	// Validate reconciler configuration
	if c.Reconciler.Concurrency < 1 {
		return fmt.Errorf("reconciler.concurrency must be at least 1")
	}

	// Validate logging configuration
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}
