// Package config provides configuration management for the card vault.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the root configuration for the vault process.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	NATS       NATSConfig       `mapstructure:"nats"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Security   SecurityConfig   `mapstructure:"security"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// CORSOrigins lists browser origins allowed to call the admin API.
	// Empty disables CORS.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns the listen address for the admin server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
	PoolSize  int    `mapstructure:"pool_size"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	// MigrationsPath overrides the embedded schema with a golang-migrate
	// source URL.
	MigrationsPath string `mapstructure:"migrations_path"`
}

// DSN builds a libpq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	// AuditStream, when set, names a JetStream stream that persists audit
	// entries. Empty publishes them on core NATS only.
	AuditStream    string        `mapstructure:"audit_stream"`
	AuditRetention time.Duration `mapstructure:"audit_retention"`
}

// OpenSearchConfig holds OpenSearch connection settings for the audit sink.
type OpenSearchConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	AuditIndex    string `mapstructure:"audit_index"`
}

// SecurityConfig holds key material and session policy.
type SecurityConfig struct {
	// EncryptionKey is a base64 encoded 32-byte AES key. When empty the key is
	// derived from Passphrase and KeySalt.
	EncryptionKey         string        `mapstructure:"encryption_key"`
	Passphrase            string        `mapstructure:"passphrase"`
	KeySalt               string        `mapstructure:"key_salt"`
	SessionTTL            time.Duration `mapstructure:"session_ttl"`
	SessionSweepInterval  time.Duration `mapstructure:"session_sweep_interval"`
	AuditSecret           string        `mapstructure:"audit_secret"`
	AdminUser             string        `mapstructure:"admin_user"`
	AdminPasswordHash     string        `mapstructure:"admin_password_hash"`
	EmergencyRestartDelay time.Duration `mapstructure:"emergency_restart_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from configPath (or $VAULT_CONFIG_DIR/config.yaml
// when configPath is empty) and VAULT_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configDir := os.Getenv("VAULT_CONFIG_DIR")
		if configDir == "" {
			configDir = "/etc/cardvault"
		}
		configPath = filepath.Join(configDir, "config.yaml")
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("VAULT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// SetConfigFile reports a missing file as a path error rather than
		// ConfigFileNotFoundError.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	if c.Security.SessionTTL <= 0 {
		return fmt.Errorf("security.session_ttl must be positive")
	}
	if c.Security.EncryptionKey == "" && c.Security.Passphrase == "" {
		return fmt.Errorf("one of security.encryption_key or security.passphrase is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.redis.url", "redis://localhost:6379/0")
	v.SetDefault("storage.redis.key_prefix", "cardvault:")
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", "cardvault")
	v.SetDefault("storage.postgres.user", "cardvault")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.migrations_path", "")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.audit_stream", "")
	v.SetDefault("nats.audit_retention", "720h")

	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.audit_index", "cardvault-audit")

	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.passphrase", "change-this-in-production")
	v.SetDefault("security.key_salt", "cardvault-default-salt")
	v.SetDefault("security.session_ttl", "30m")
	v.SetDefault("security.session_sweep_interval", "1m")
	v.SetDefault("security.audit_secret", "change-this-in-production")
	v.SetDefault("security.admin_user", "admin")
	v.SetDefault("security.admin_password_hash", "")
	v.SetDefault("security.emergency_restart_delay", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
