// Package config handles loading configuration from .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings of the document store and its tooling.
type Config struct {
	// DataDir is the directory relative document names resolve against.
	DataDir string

	// Lock budgets
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PollInterval time.Duration

	// FileMode is applied to documents created by the store.
	FileMode os.FileMode

	// LogFile is the path of the rotated log file.
	LogFile string
}

// DefaultEnvPath is the default path for the .env file.
const DefaultEnvPath = ".env"

// Defaults used when a variable is unset or unparsable.
const (
	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultFileMode     = os.FileMode(0o644)
	DefaultLogFile      = "flatstore.log"
)

// ErrNoConfigFile indicates an explicitly requested .env file was not found.
var ErrNoConfigFile = errors.New("configuration file not found")

// LoadConfig loads configuration from the specified .env file path, then
// from the environment. If path is empty, DefaultEnvPath is used when it
// exists and silently skipped otherwise.
// Returns the config and any warnings (e.g., unparsable values) as a slice of strings.
func LoadConfig(path string) (*Config, []string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if explicit {
			return nil, nil, fmt.Errorf("%w: %s", ErrNoConfigFile, absPath)
		}
		return LoadConfigFromEnv()
	}

	// Variables already set in the environment win over the file.
	if err := godotenv.Load(absPath); err != nil {
		return nil, nil, fmt.Errorf("failed to load config file: %w", err)
	}

	return LoadConfigFromEnv()
}

// LoadConfigFromEnv loads configuration directly from environment variables
// without reading a .env file.
func LoadConfigFromEnv() (*Config, []string, error) {
	cfg := &Config{}
	warnings, err := cfg.loadFromEnv()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

// loadFromEnv populates the Config from environment variables.
func (c *Config) loadFromEnv() ([]string, error) {
	var w warnings

	dataDir := os.Getenv("FLATSTORE_DATA_DIR")
	if dataDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return w, fmt.Errorf("failed to get current directory: %w", err)
		}
		dataDir = wd
	}
	c.DataDir = dataDir

	c.ReadTimeout = w.duration("FLATSTORE_READ_TIMEOUT", DefaultReadTimeout)
	c.WriteTimeout = w.duration("FLATSTORE_WRITE_TIMEOUT", DefaultWriteTimeout)
	c.PollInterval = w.duration("FLATSTORE_POLL_INTERVAL", DefaultPollInterval)
	c.FileMode = w.fileMode("FLATSTORE_FILE_MODE", DefaultFileMode)
	c.LogFile = getEnvWithDefault("FLATSTORE_LOG_FILE", DefaultLogFile)

	return w, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("FLATSTORE_DATA_DIR must not be empty")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("FLATSTORE_READ_TIMEOUT must be positive, got %s", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("FLATSTORE_WRITE_TIMEOUT must be positive, got %s", c.WriteTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("FLATSTORE_POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.PollInterval > c.ReadTimeout {
		return fmt.Errorf("FLATSTORE_POLL_INTERVAL (%s) must not exceed FLATSTORE_READ_TIMEOUT (%s)", c.PollInterval, c.ReadTimeout)
	}
	if c.FileMode&0o600 != 0o600 {
		return fmt.Errorf("FLATSTORE_FILE_MODE %04o must allow the owner to read and write", c.FileMode)
	}
	return nil
}

// Helper functions for environment variable parsing

type warnings []string

func (w *warnings) duration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*w = append(*w, fmt.Sprintf("%s=%q is not a duration, using %s", key, value, defaultValue))
		return defaultValue
	}
	return d
}

func (w *warnings) fileMode(key string, defaultValue os.FileMode) os.FileMode {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	mode, err := strconv.ParseUint(value, 8, 32)
	if err != nil || mode > 0o777 {
		*w = append(*w, fmt.Sprintf("%s=%q is not an octal permission, using %04o", key, value, defaultValue))
		return defaultValue
	}
	return os.FileMode(mode)
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
