// Package config loads registry settings from defaults, an optional YAML
// file, a .env file and REGISTRY_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// ConfigPathEnv names the YAML file to load when no path is passed.
const ConfigPathEnv = "REGISTRY_CONFIG"

// Config is the full runtime configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"REGISTRY_HTTP_HOST"`
	Port            int           `yaml:"port" env:"REGISTRY_HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"REGISTRY_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"REGISTRY_HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"REGISTRY_HTTP_SHUTDOWN_TIMEOUT"`
	// AllowedOrigins enables CORS for the listed origins; "*" allows any.
	// Separate entries with ';' in the environment.
	AllowedOrigins []string `yaml:"allowed_origins" env:"REGISTRY_HTTP_ALLOWED_ORIGINS"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects and configures the durable store.
type StorageConfig struct {
	Backend         string        `yaml:"backend" env:"REGISTRY_STORAGE_BACKEND"`
	DSN             string        `yaml:"dsn" env:"REGISTRY_STORAGE_DSN"`
	Namespace       string        `yaml:"namespace" env:"REGISTRY_STORAGE_NAMESPACE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"REGISTRY_STORAGE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"REGISTRY_STORAGE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"REGISTRY_STORAGE_CONN_MAX_LIFETIME"`
	RedisAddr       string        `yaml:"redis_addr" env:"REGISTRY_REDIS_ADDR"`
	RedisPassword   string        `yaml:"redis_password" env:"REGISTRY_REDIS_PASSWORD"`
	RedisDB         int           `yaml:"redis_db" env:"REGISTRY_REDIS_DB"`
}

// AuthConfig configures caller attribution for mutating HTTP calls.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"REGISTRY_JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"REGISTRY_JWT_ISSUER"`
}

// LoggingConfig mirrors logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"REGISTRY_LOG_LEVEL"`
	Format     string `yaml:"format" env:"REGISTRY_LOG_FORMAT"`
	Output     string `yaml:"output" env:"REGISTRY_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"REGISTRY_LOG_FILE_PREFIX"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   BackendSQLite,
			DSN:       "registry.db",
			Namespace: "registry",
		},
		Auth: AuthConfig{
			Issuer: "password-registry",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// $REGISTRY_CONFIG is consulted; a missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate checks the fields every command depends on.
func (c *Config) Validate() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case BackendSQLite, BackendPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for the %s backend", c.Storage.Backend)
		}
	case BackendRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Storage.Namespace) == "" {
		return fmt.Errorf("storage.namespace is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}
