// Package config provides YAML-based configuration management.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	BindAddress    string   `yaml:"bindAddress"`
	EnableCORS     bool     `yaml:"enableCors"`
	AllowOrigins   []string `yaml:"allowOrigins"`
	ReadTimeout    int      `yaml:"readTimeoutSeconds"`
	WriteTimeout   int      `yaml:"writeTimeoutSeconds"`
	IdleTimeout    int      `yaml:"idleTimeoutSeconds"`
	RequestTimeout int      `yaml:"requestTimeoutSeconds"`
	BodyLimit      string   `yaml:"bodyLimit"`
}

// DatabaseConfig selects the record store
type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"autoMigrate"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `yaml:"dataDirectory"`
	UploadsDirectory string `yaml:"uploadsDirectory"`
	ReportsDirectory string `yaml:"reportsDirectory"`
	MaxUploadBytes   int64  `yaml:"maxUploadBytes"`
}

// IngestionConfig sizes the ingestion worker pool
type IngestionConfig struct {
	Workers                int `yaml:"workers"`
	QueueSize              int `yaml:"queueSize"`
	StatusPollMillis       int `yaml:"statusPollMillis"`
	StatusStreamTimeoutSec int `yaml:"statusStreamTimeoutSeconds"`
}

// AuthConfig contains session and token settings
type AuthConfig struct {
	SessionSecret string `yaml:"sessionSecret"`
	TokenSecret   string `yaml:"tokenSecret"`
	TokenTTL      int    `yaml:"tokenTtlMinutes"`
	SessionMaxAge int    `yaml:"sessionMaxAgeSeconds"`
	CookieSecure  bool   `yaml:"cookieSecure"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"` // json or console
	RequestLogging bool   `yaml:"requestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:           5000,
			BindAddress:    "0.0.0.0",
			EnableCORS:     true,
			AllowOrigins:   []string{"*"},
			ReadTimeout:    30,
			WriteTimeout:   30,
			IdleTimeout:    120,
			RequestTimeout: 30,
			BodyLimit:      "12M",
		},
		Database: DatabaseConfig{
			Driver:      "sqlite",
			AutoMigrate: true,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "uploads",
			ReportsDirectory: "reports",
			MaxUploadBytes:   10 * 1024 * 1024,
		},
		Ingestion: IngestionConfig{
			Workers:                4,
			QueueSize:              64,
			StatusPollMillis:       500,
			StatusStreamTimeoutSec: 120,
		},
		Auth: AuthConfig{
			TokenTTL:      24 * 60,
			SessionMaxAge: 7 * 24 * 3600,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			RequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is
// created with defaults and freshly generated secrets.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		if err := config.generateSecrets(); err != nil {
			return nil, err
		}
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# sheetflow backend configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *AppConfig) generateSecrets() error {
	for _, s := range []*string{&c.Auth.SessionSecret, &c.Auth.TokenSecret} {
		if *s != "" {
			continue
		}
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generating secret: %w", err)
		}
		*s = hex.EncodeToString(buf)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			c.Database.Driver = "postgres"
		}
	}
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		c.Database.Driver = strings.ToLower(driver)
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		c.Auth.SessionSecret = secret
	}
	if secret := os.Getenv("TOKEN_SECRET"); secret != "" {
		c.Auth.TokenSecret = secret
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

// resolvePaths converts relative paths to absolute. The data directory is
// relative to the config file; uploads and reports to the data directory.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(c.Storage.DataDirectory, c.Storage.UploadsDirectory)
	}
	if !filepath.IsAbs(c.Storage.ReportsDirectory) {
		c.Storage.ReportsDirectory = filepath.Join(c.Storage.DataDirectory, c.Storage.ReportsDirectory)
	}
}

// Validate reports configuration errors that would stop the server.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of postgres, sqlite, memory", c.Database.Driver))
	}
	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("storage.maxUploadBytes must be positive"))
	}
	if c.Ingestion.Workers <= 0 {
		errs = append(errs, errors.New("ingestion.workers must be positive"))
	}
	if c.Ingestion.QueueSize < 0 {
		errs = append(errs, errors.New("ingestion.queueSize must not be negative"))
	}
	if c.Auth.SessionSecret == "" {
		errs = append(errs, errors.New("auth.sessionSecret is required"))
	}
	if c.Auth.TokenSecret == "" {
		errs = append(errs, errors.New("auth.tokenSecret is required"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not json or console", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// DatabaseDSN returns the configured DSN, defaulting sqlite to a file in
// the data directory.
func (c *AppConfig) DatabaseDSN() string {
	if c.Database.DSN != "" || c.Database.Driver != "sqlite" {
		return c.Database.DSN
	}
	return "file:" + filepath.Join(c.Storage.DataDirectory, "sheetflow.db") + "?_foreign_keys=on&_busy_timeout=5000"
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// TokenTTL returns the bearer token lifetime
func (c *AppConfig) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTL) * time.Minute
}

// StatusPollInterval returns how often status streams poll the store
func (c *AppConfig) StatusPollInterval() time.Duration {
	return time.Duration(c.Ingestion.StatusPollMillis) * time.Millisecond
}

// StatusStreamTimeout returns the maximum lifetime of a status stream
func (c *AppConfig) StatusStreamTimeout() time.Duration {
	return time.Duration(c.Ingestion.StatusStreamTimeoutSec) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.ReportsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
