// Package config persists the operator's answers between runs (SSH host,
// remote parent directory, port, proxy IP) and the record of the last
// successful deployment per host and project. Values are resolved through
// viper, so DEPLOY_* environment variables override the file and the
// Defaults table fills the gaps. All operations are safe for concurrent use.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. DEPLOY_SSH_HOST.
const EnvPrefix = "DEPLOY"

// Config manages persisted deployment answers with thread-safe operations
type Config struct {
	filePath string
	v        *viper.Viper
	data     map[string]string // values stored in the file, without defaults or env
	loaded   bool              // Track if configuration has been loaded from disk
	mu       sync.RWMutex
}

// ensureLoaded loads configuration data from disk once before read operations.
// This method must only be called while holding c.mu.Lock.
func (c *Config) ensureLoaded() error {
	if c.loaded {
		return nil
	}
	return c.load()
}

// DefaultFilePath returns <user config dir>/deploy/config.json.
func DefaultFilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "deploy", "config.json")
}

// StateDir returns <user state dir>/deploy, honouring XDG_STATE_HOME.
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "deploy")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "deploy")
	}
	return filepath.Join(home, ".local", "state", "deploy")
}

// New creates a new Config instance. An empty filePath selects the default.
func New(filePath string) *Config {
	if filePath == "" {
		filePath = DefaultFilePath()
	}

	return &Config{
		filePath: filePath,
		v:        newViper(),
		data:     make(map[string]string),
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the unprefixed names are accepted for logging
	_ = v.BindEnv(KeyLogLevel, EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv(KeyLogFormat, EnvPrefix+"_LOG_FORMAT", "LOG_FORMAT")
	return v
}

// Load reads configuration from file
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *Config) load() error {
	c.v = newViper()
	c.data = make(map[string]string)

	// If file doesn't exist, that's okay - we'll create it on Save
	if _, err := os.Stat(c.filePath); os.IsNotExist(err) {
		c.loaded = true
		return nil
	}

	file := viper.New()
	file.SetConfigFile(c.filePath)
	file.SetConfigType("json")
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", c.filePath, err)
	}

	settings := file.AllSettings()
	for key, value := range settings {
		c.data[key] = fmt.Sprint(value)
	}
	if err := c.v.MergeConfigMap(settings); err != nil {
		return fmt.Errorf("failed to merge config file: %w", err)
	}

	c.loaded = true
	return nil
}

// save writes the file-backed values using atomic write pattern.
// This prevents data loss if the write operation fails midway.
func (c *Config) save() error {
	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := json.MarshalIndent(c.data, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Create temporary file in the same directory for atomic rename
	tmpFile, err := os.CreateTemp(dir, ".config.json.tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath) // Cleanup on error

	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to set permissions on temp file: %w", err)
	}

	if _, err := tmpFile.Write(append(content, '\n')); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	// Explicitly check close error to prevent data loss
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, c.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file to config: %w", err)
	}

	return nil
}

// Get retrieves a configuration value from the environment, the file or the
// Defaults table (thread-safe)
func (c *Config) Get(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if !c.v.IsSet(key) {
		return "", fmt.Errorf("config key not found: %s", key)
	}
	return c.v.GetString(key), nil
}

// GetOrDefault retrieves a value or returns fallback if it is not set
// anywhere, including the Defaults table (thread-safe)
func (c *Config) GetOrDefault(key, fallback string) string {
	value, err := c.Get(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// GetInt retrieves an integer value
func (c *Config) GetInt(key string) (int, error) {
	value, err := c.Get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("config key %s is not an integer: %q", key, value)
	}
	return n, nil
}

// GetDuration retrieves a duration value such as "5s"
func (c *Config) GetDuration(key string) (time.Duration, error) {
	value, err := c.Get(key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("config key %s is not a duration: %q", key, value)
	}
	return d, nil
}

// Set stores a value in the file (thread-safe)
// Automatically loads existing configuration if not already loaded to prevent data loss
func (c *Config) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		return fmt.Errorf("failed to load existing config before set: %w", err)
	}

	c.data[key] = value
	c.v.Set(key, value)
	return c.save()
}

// Exists checks if a key is stored in the file (thread-safe)
func (c *Config) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		return false
	}
	_, exists := c.data[key]
	return exists
}

// GetAll returns the file-backed configuration data (thread-safe)
func (c *Config) GetAll() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		return map[string]string{}
	}
	// Return a copy to prevent external modification
	result := make(map[string]string, len(c.data))
	for k, v := range c.data {
		result[k] = v
	}
	return result
}

// Keys returns the file-backed keys in sorted order.
func (c *Config) Keys() []string {
	all := c.GetAll()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Delete removes a stored key (thread-safe)
func (c *Config) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLoaded(); err != nil {
		return fmt.Errorf("failed to load existing config before delete: %w", err)
	}

	delete(c.data, key)
	if err := c.save(); err != nil {
		return err
	}
	// viper has no unset; rebuild from the file
	return c.load()
}

// Reset removes the config file.
func (c *Config) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove config file: %w", err)
	}
	c.loaded = false
	return nil
}

// FilePath returns the configuration file path
func (c *Config) FilePath() string {
	return c.filePath
}
