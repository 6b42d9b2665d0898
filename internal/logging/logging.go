// Package logging builds the zap logger that records every deployment
// attempt to a daily file under the user state directory.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultRetention is how long daily log files are kept.
	DefaultRetention = 14 * 24 * time.Hour

	filePrefix = "deploy-"
	fileSuffix = ".log"
	dateLayout = "2006-01-02"
)

// Options configures New.
type Options struct {
	// Dir holds the daily log files.
	Dir string
	// Level is DEBUG, INFO, WARNING, ERROR or CRITICAL.
	Level string
	// Format is JSON or SIMPLE.
	Format string
	// Verbose forces DEBUG regardless of Level.
	Verbose bool
	// Retention defaults to DefaultRetention.
	Retention time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// ParseLevel maps the LOG_LEVEL names onto zap levels.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "", "INFO":
		return zapcore.InfoLevel, nil
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "WARNING", "WARN":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	case "CRITICAL":
		return zapcore.DPanicLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q (valid: DEBUG, INFO, WARNING, ERROR, CRITICAL)", level)
	}
}

func newEncoder(format string) (zapcore.Encoder, error) {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	switch strings.ToUpper(strings.TrimSpace(format)) {
	case "", "JSON":
		return zapcore.NewJSONEncoder(cfg), nil
	case "SIMPLE":
		cfg.ConsoleSeparator = " "
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: JSON, SIMPLE)", format)
	}
}

// FileName returns the log file name for the given day.
func FileName(day time.Time) string {
	return filePrefix + day.Format(dateLayout) + fileSuffix
}

// New opens today's log file, prunes expired ones and returns a logger
// writing to it. The returned function flushes and closes the file.
func New(opts Options) (*zap.Logger, func() error, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	retention := opts.Retention
	if retention == 0 {
		retention = DefaultRetention
	}

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encoder, err := newEncoder(opts.Format)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if _, err := Prune(opts.Dir, now(), retention); err != nil {
		return nil, nil, err
	}

	path := filepath.Join(opts.Dir, FileName(now()))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), level)
	logger := zap.New(core)

	closeFn := func() error {
		_ = logger.Sync()
		return file.Close()
	}
	return logger, closeFn, nil
}

// Prune deletes daily log files older than retention and returns their names.
// Files that do not follow the daily naming scheme are left alone.
func Prune(dir string, now time.Time, retention time.Duration) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := now.Add(-retention)
	var removed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		day, err := time.ParseInLocation(dateLayout, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), now.Location())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return removed, fmt.Errorf("failed to remove old log %s: %w", name, err)
			}
			removed = append(removed, name)
		}
	}
	return removed, nil
}
