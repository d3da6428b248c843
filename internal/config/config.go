// Package config provides configuration loading and structs for the kbserve server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Health  HealthConfig  `yaml:"health"`
	Auth    AuthConfig    `yaml:"auth"`

	// APIKey is read from the environment once at load time and never serialized.
	APIKey string `yaml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds the knowledge base location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// HealthConfig holds readiness check settings.
type HealthConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig names where the API credential comes from.
type AuthConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	EnvFile   string `yaml:"env_file"`
}

// APIKeySet reports whether a non-empty credential was found.
func (c *Config) APIKeySet() bool {
	return c.APIKey != ""
}

// Load reads and parses the config file at path, expands paths, applies defaults
// and loads the API credential.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	expandPaths(&cfg, filepath.Dir(path))

	if err := LoadCredentials(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration with paths relative to the working directory.
func Default() (*Config, error) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	expandPaths(cfg, cwd)
	if err := LoadCredentials(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCredentials loads the env file (if present) and reads the API key variable.
// Variables already set in the process environment take precedence over the file.
func LoadCredentials(cfg *Config) error {
	if cfg.Auth.EnvFile != "" {
		if err := godotenv.Load(cfg.Auth.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}
	cfg.APIKey = os.Getenv(cfg.Auth.APIKeyEnv)
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func expandPaths(cfg *Config, baseDir string) {
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, baseDir)
	if cfg.Auth.EnvFile != "" {
		cfg.Auth.EnvFile = expandPath(cfg.Auth.EnvFile, baseDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to baseDir;
// other relative paths are relative to the home directory.
func expandPath(path string, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(baseDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
