package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func fixedNow() time.Time {
	return time.Date(2026, 10, 17, 12, 0, 0, 0, time.Local)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"WARNING", zapcore.WarnLevel, false},
		{"ERROR", zapcore.ErrorLevel, false},
		{"CRITICAL", zapcore.DPanicLevel, false},
		{"TRACE", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := ParseLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNewWritesJSONToDailyFile(t *testing.T) {
	dir := t.TempDir()

	logger, closeFn, err := New(Options{Dir: dir, Level: "INFO", Format: "JSON", Now: fixedNow})
	require.NoError(t, err)

	logger.Debug("not written")
	logger.Info("launched services", zap.String("project", "url-shortener"), zap.Int("port", 8228))
	require.NoError(t, closeFn())

	content, err := os.ReadFile(filepath.Join(dir, "deploy-2026-10-17.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "launched services", entry["message"])
	assert.Equal(t, "url-shortener", entry["project"])
	assert.Contains(t, entry, "time")
}

func TestNewVerboseForcesDebug(t *testing.T) {
	dir := t.TempDir()

	logger, closeFn, err := New(Options{Dir: dir, Level: "ERROR", Format: "SIMPLE", Verbose: true, Now: fixedNow})
	require.NoError(t, err)
	logger.Debug("probe script")
	require.NoError(t, closeFn())

	content, err := os.ReadFile(filepath.Join(dir, FileName(fixedNow())))
	require.NoError(t, err)
	assert.Contains(t, string(content), "DEBUG")
	assert.Contains(t, string(content), "probe script")
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	_, _, err := New(Options{Dir: t.TempDir(), Format: "XML"})
	assert.Error(t, err)

	_, _, err = New(Options{Dir: t.TempDir(), Level: "LOUD"})
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := fixedNow()

	keep := []string{
		FileName(now),
		FileName(now.AddDate(0, 0, -13)),
		"notes.txt",
		"deploy-latest.log",
	}
	expired := []string{
		FileName(now.AddDate(0, 0, -15)),
		FileName(now.AddDate(0, -2, 0)),
	}
	for _, name := range append(keep, expired...) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	removed, err := Prune(dir, now, DefaultRetention)
	require.NoError(t, err)
	assert.ElementsMatch(t, expired, removed)

	for _, name := range keep {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "%s should be kept", name)
	}
}
