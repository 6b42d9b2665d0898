package steps

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

// launchTimeout allows for image pulls and builds.
const launchTimeout = 500 * time.Second

// ServiceLauncher starts the project's services, detached.
type ServiceLauncher struct {
	remote system.RemoteRunner
	ui     Prompter
	logger *zap.Logger
	dryRun bool
}

// NewServiceLauncher creates a new ServiceLauncher
func NewServiceLauncher(remote system.RemoteRunner, ui Prompter, logger *zap.Logger, dryRun bool) *ServiceLauncher {
	return &ServiceLauncher{remote: remote, ui: ui, logger: logger, dryRun: dryRun}
}

// upCommand exports the chosen port so compose files can publish ${PORT}.
func upCommand(dc *DeploymentContext) string {
	return dc.inProjectDir(fmt.Sprintf("PORT=%d %s up -d", dc.Port, dc.ComposeCommand()))
}

// Launch runs `docker compose up -d`. A failure is not retried.
func (l *ServiceLauncher) Launch(ctx context.Context, dc *DeploymentContext) error {
	l.ui.Info("Starting the Docker services")
	if l.dryRun {
		l.ui.Infof("[dry run] skipped %s", upCommand(dc))
		return nil
	}

	start := time.Now()
	result, err := l.remote.Exec(ctx, system.RemoteCommand{
		Script:  upCommand(dc),
		Timeout: launchTimeout,
	})
	if err != nil {
		return remoteError(err)
	}
	if !result.Success() {
		l.logger.Error("service launch failed",
			zap.String("project", dc.ProjectName),
			zap.Int("exit_code", result.ExitCode),
			zap.String("stderr", result.Stderr))
		return &ServiceLaunchError{ExitCode: result.ExitCode, Stderr: result.Stderr}
	}

	l.logger.Info("services launched",
		zap.String("project", dc.ProjectName),
		zap.String("host", dc.Host.Alias),
		zap.String("commit", dc.CommitID),
		zap.Int("port", dc.Port),
		zap.Duration("elapsed", time.Since(start)))
	l.ui.Success("Services started")
	return nil
}
