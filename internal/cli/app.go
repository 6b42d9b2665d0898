// Package cli wires configuration, terminal, logging and the remote
// tooling together and runs a deployment attempt stage by stage.
package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/config"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/logging"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/steps"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/ui"
)

// Terminal is what an attempt needs from the operator's terminal. *ui.UI
// implements it.
type Terminal interface {
	steps.Prompter
	Header(title string)
	Error(msg string)
	Stdout() io.Writer
}

// Options are the command-line settings for one invocation.
type Options struct {
	// ProjectDir is the local project folder, normally the working directory.
	ProjectDir string
	// ConfigPath overrides the saved answers file.
	ConfigPath     string
	DryRun         bool
	Verbose        bool
	NonInteractive bool
	// Interval overrides the saved poll interval when non-zero.
	Interval time.Duration
}

// App holds the dependencies shared by all commands
type App struct {
	Config  *config.Config
	UI      *ui.UI
	Logger  *zap.Logger
	Records *config.Records
	Options Options

	closeLog func() error
}

// NewApp loads the saved answers and opens today's log file.
func NewApp(opts Options) (*App, error) {
	cfg := config.New(opts.ConfigPath)
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	uiInstance := ui.New()
	uiInstance.SetNonInteractive(opts.NonInteractive)
	uiInstance.SetVerbose(opts.Verbose)

	logger, closeLog, err := logging.New(logging.Options{
		Dir:     filepath.Join(config.StateDir(), "logs"),
		Level:   cfg.GetOrDefault(config.KeyLogLevel, "INFO"),
		Format:  cfg.GetOrDefault(config.KeyLogFormat, "JSON"),
		Verbose: opts.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return &App{
		Config:   cfg,
		UI:       uiInstance,
		Logger:   logger,
		Records:  config.NewRecords(""),
		Options:  opts,
		closeLog: closeLog,
	}, nil
}

// Close flushes the log file.
func (a *App) Close() error {
	if a.closeLog == nil {
		return nil
	}
	return a.closeLog()
}
