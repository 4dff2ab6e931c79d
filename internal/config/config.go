// Package config loads the server configuration from a YAML file with
// sensible defaults for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the backing stores. SQLite is always on; Redis is
// optional and replaces the in-process hot tier when an address is set.
type StorageConfig struct {
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig holds the optional hot-tier connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RuntimeConfig tunes the execution engine and the boundary protocol.
type RuntimeConfig struct {
	ExecutionTimeout  time.Duration `yaml:"execution_timeout"`
	IdempotencyWindow time.Duration `yaml:"idempotency_window"`
	ContractTTL       time.Duration `yaml:"contract_ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	HotStateTTL       time.Duration `yaml:"hot_state_ttl"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			SQLitePath: "graft.db",
		},
		Runtime: RuntimeConfig{
			ExecutionTimeout:  5 * time.Minute,
			IdempotencyWindow: time.Hour,
			ContractTTL:       15 * time.Minute,
			SweepInterval:     30 * time.Second,
			HotStateTTL:       5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
