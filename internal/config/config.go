// ABOUTME: Configuration loading and parsing for wallet-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/wallet-gateway/internal/auth"
)

// Environment overrides.
const (
	EnvConfigPath = "WALLET_GATEWAY_CONFIG"
	EnvDBPath     = "WALLET_GATEWAY_DB_PATH"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config represents the complete wallet-gateway configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Authorization AuthorizationConfig `yaml:"authorization" toml:"authorization"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Executor      ExecutorConfig      `yaml:"executor" toml:"executor"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" toml:"telemetry"`
}

// ServerConfig holds listener addresses. HTTPAddr serves health checks only
// and may be empty.
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Driver   string         `yaml:"driver" toml:"driver"`
	Path     string         `yaml:"path" toml:"path"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Password  string `yaml:"password" toml:"password"`
	DB        int    `yaml:"db" toml:"db"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// PostgresConfig holds the Postgres connection string
type PostgresConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// AuthorizationConfig tunes the authorization engine
type AuthorizationConfig struct {
	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	ResolvedTTL    time.Duration `yaml:"-" toml:"-"`
	MaxPending     int           `yaml:"max_pending" toml:"max_pending"`
	DefaultMode    string        `yaml:"default_mode" toml:"default_mode"`

	// Raw string values for unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
	ResolvedTTLRaw    string `yaml:"resolved_ttl" toml:"resolved_ttl"`
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	// UISubject is the subject written into tokens minted for the approval UI.
	UISubject string `yaml:"ui_subject" toml:"ui_subject"`
}

// ExecutorConfig locates the execution node that simulates, proves and
// sends transactions
type ExecutorConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Insecure bool   `yaml:"insecure" toml:"insecure"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled"`
	ServiceName  string `yaml:"service_name" toml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure" toml:"insecure"`
}

// Default returns the configuration used for any field a file leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr: "127.0.0.1:50061",
			HTTPAddr: "127.0.0.1:8061",
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join(DataDir(), "wallet.db"),
		},
		Authorization: AuthorizationConfig{
			RequestTimeout: 5 * time.Minute,
			ResolvedTTL:    10 * time.Minute,
			MaxPending:     64,
			DefaultMode:    "permissive",
		},
		Auth: AuthConfig{
			UISubject: "wallet-ui",
		},
		Executor: ExecutorConfig{
			Addr:     "127.0.0.1:50062",
			Insecure: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "wallet-gateway",
			OTLPEndpoint: "localhost:4317",
		},
	}
}

// Path returns the config file path.
// Priority: WALLET_GATEWAY_CONFIG > XDG_CONFIG_HOME/wallet-gateway/config.yaml > ~/.config/wallet-gateway/config.yaml
func Path() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "wallet-gateway", "config.yaml")
}

// DataDir returns the default data directory.
// Priority: XDG_DATA_HOME/wallet-gateway > ~/.local/share/wallet-gateway
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "wallet-gateway")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes configuration content, applying the same steps as Load.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if isTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if envPath := os.Getenv(EnvDBPath); envPath != "" {
		cfg.Storage.Path = envPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return errors.New("server.grpc_addr is required")
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case DriverMemory:
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for the redis driver")
		}
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of sqlite, memory, redis, postgres", c.Storage.Driver)
	}

	if c.Authorization.RequestTimeout <= 0 {
		return errors.New("authorization.request_timeout must be positive")
	}
	if c.Authorization.MaxPending < 0 {
		return errors.New("authorization.max_pending must not be negative")
	}
	if m := c.Authorization.DefaultMode; m != "permissive" && m != "strict" {
		return fmt.Errorf("authorization.default_mode %q must be permissive or strict", m)
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", auth.MinSecretLength)
	}
	if c.Auth.UISubject == "" {
		return errors.New("auth.ui_subject is required")
	}

	if c.Executor.Addr == "" {
		return errors.New("executor.addr is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return errors.New("telemetry.otlp_endpoint is required when telemetry is enabled")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Authorization.RequestTimeoutRaw != "" {
		cfg.Authorization.RequestTimeout, err = time.ParseDuration(cfg.Authorization.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Authorization.RequestTimeoutRaw, err)
		}
	}

	if cfg.Authorization.ResolvedTTLRaw != "" {
		cfg.Authorization.ResolvedTTL, err = time.ParseDuration(cfg.Authorization.ResolvedTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing resolved_ttl %q: %w", cfg.Authorization.ResolvedTTLRaw, err)
		}
	}

	return nil
}
