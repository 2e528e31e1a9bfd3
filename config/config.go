// Package config loads the server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/warp/spending-tracker/ledger"
	"github.com/warp/spending-tracker/logger"
	"github.com/warp/spending-tracker/store/sqlite"
	"github.com/warp/spending-tracker/workbook"
)

// Config represents the top-level spending-tracker.yaml configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Import   ImportConfig   `yaml:"import"`
	CORS     CORSConfig     `yaml:"cors"`
	Currency string         `yaml:"currency"` // default for new accounts
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite3" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite3, URL for postgres
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// ImportConfig bounds workbook uploads.
type ImportConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// Load reads a config file from disk. Keys missing from the file keep
// their Default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config suitable for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: sqlite.DriverSQLite,
			DSN:    "spending-tracker.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: logger.FormatConsole,
		},
		Import: ImportConfig{MaxBytes: workbook.MaxUploadBytes},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Currency: ledger.DefaultCurrency,
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case sqlite.DriverSQLite, sqlite.DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database.dsn is required")
	}
	switch c.Log.Format {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("config: unsupported log.format %q", c.Log.Format)
	}
	if c.Import.MaxBytes <= 0 {
		return fmt.Errorf("config: invalid import.max_bytes %d", c.Import.MaxBytes)
	}
	return nil
}
