package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoadSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "deploy", "config.json")

	cfg := New(configPath)
	if err := cfg.Set(KeySSHHost, "minipc"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := cfg.Set(KeyRemoteParentDir, "/home/chris/repos"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Load config in new instance
	cfg2 := New(configPath)
	if err := cfg2.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if val := cfg2.GetOrDefault(KeySSHHost, ""); val != "minipc" {
		t.Errorf("GetOrDefault() = %v, want %v", val, "minipc")
	}
	if val := cfg2.GetOrDefault(KeyRemoteParentDir, ""); val != "/home/chris/repos" {
		t.Errorf("GetOrDefault() = %v, want %v", val, "/home/chris/repos")
	}
	assert.Equal(t, []string{KeyRemoteParentDir, KeySSHHost}, cfg2.Keys())
}

func TestConfigGet(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))

	require.NoError(t, cfg.Set(KeySSHHost, "minipc"))

	val, err := cfg.Get(KeySSHHost)
	if err != nil {
		t.Errorf("Get() error = %v, want nil", err)
	}
	if val != "minipc" {
		t.Errorf("Get() = %v, want %v", val, "minipc")
	}

	_, err = cfg.Get(KeyProxyIPAddress)
	if err == nil {
		t.Error("Get() error = nil, want error for non-existent key")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))

	port, err := cfg.GetInt(KeyPort)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, port)

	interval, err := cfg.GetDuration(KeyPollInterval)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, interval)

	failures, err := cfg.GetInt(KeyMaxPollFailures)
	require.NoError(t, err)
	assert.Equal(t, 3, failures)

	// Defaults are not persisted
	assert.False(t, cfg.Exists(KeyPort))
}

func TestConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("DEPLOY_SSH_HOST", "from-env")
	t.Setenv("DEPLOY_POLL_INTERVAL", "2s")

	cfg := New(filepath.Join(t.TempDir(), "config.json"))

	assert.Equal(t, "from-env", cfg.GetOrDefault(KeySSHHost, ""))
	interval, err := cfg.GetDuration(KeyPollInterval)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, interval)
}

func TestConfigUnprefixedLogEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "SIMPLE")

	cfg := New(filepath.Join(t.TempDir(), "config.json"))

	assert.Equal(t, "DEBUG", cfg.GetOrDefault(KeyLogLevel, ""))
	assert.Equal(t, "SIMPLE", cfg.GetOrDefault(KeyLogFormat, ""))
}

func TestConfigInvalidValues(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Set(KeyPort, "eighty"))
	require.NoError(t, cfg.Set(KeyPollInterval, "often"))

	_, err := cfg.GetInt(KeyPort)
	assert.Error(t, err)
	_, err = cfg.GetDuration(KeyPollInterval)
	assert.Error(t, err)
}

func TestConfigGetOrDefault(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))

	val := cfg.GetOrDefault("nonexistent", "default_value")
	if val != "default_value" {
		t.Errorf("GetOrDefault() = %v, want %v", val, "default_value")
	}

	require.NoError(t, cfg.Set(KeyProxyIPAddress, "10.0.0.2"))
	val = cfg.GetOrDefault(KeyProxyIPAddress, "default")
	if val != "10.0.0.2" {
		t.Errorf("GetOrDefault() = %v, want %v", val, "10.0.0.2")
	}
}

func TestConfigDelete(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))

	require.NoError(t, cfg.Set(KeySSHHost, "minipc"))
	if !cfg.Exists(KeySSHHost) {
		t.Error("Key should exist after Set()")
	}

	require.NoError(t, cfg.Delete(KeySSHHost))
	if cfg.Exists(KeySSHHost) {
		t.Error("Key should not exist after Delete()")
	}
	if _, err := cfg.Get(KeySSHHost); err == nil {
		t.Error("Get() should fail after Delete()")
	}
}

func TestConfigReset(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	cfg := New(configPath)
	require.NoError(t, cfg.Set(KeySSHHost, "minipc"))

	require.NoError(t, cfg.Reset())
	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, cfg.Exists(KeySSHHost))

	// Resetting twice is fine
	assert.NoError(t, cfg.Reset())
}

func TestConfigLoadNonExistent(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "nonexistent.json"))

	// Should not error when loading non-existent file
	err := cfg.Load()
	if err != nil {
		t.Errorf("Load() on non-existent file error = %v, want nil", err)
	}
}

func TestConfigLoadInvalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0o600))

	cfg := New(configPath)
	assert.Error(t, cfg.Load())
}

func TestConfigFilePath(t *testing.T) {
	expectedPath := "/tmp/deploy/config.json"
	cfg := New(expectedPath)

	if cfg.FilePath() != expectedPath {
		t.Errorf("FilePath() = %v, want %v", cfg.FilePath(), expectedPath)
	}

	if New("").FilePath() == "" {
		t.Error("default FilePath() should not be empty")
	}
}
