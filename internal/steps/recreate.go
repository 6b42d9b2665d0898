package steps

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

const (
	downTimeout   = 60 * time.Second
	volumeTimeout = 30 * time.Second
	removeTimeout = 15 * time.Second
)

// Recreator removes a remote project: its services, its volumes and its
// folder. It runs before anything new is written.
type Recreator struct {
	remote system.RemoteRunner
	ui     Prompter
	logger *zap.Logger
	dryRun bool
}

// NewRecreator creates a new Recreator
func NewRecreator(remote system.RemoteRunner, ui Prompter, logger *zap.Logger, dryRun bool) *Recreator {
	return &Recreator{remote: remote, ui: ui, logger: logger, dryRun: dryRun}
}

// Remove stops the services, deletes their volumes and deletes the folder.
// A folder that cannot be fully deleted only produces a warning, since log
// files owned by root are common.
func (r *Recreator) Remove(ctx context.Context, dc *DeploymentContext) error {
	r.ui.Info("Making sure no services are running in the remote project folder")
	if err := r.run(ctx, "docker compose down", dc.inProjectDir(dc.ComposeCommand()+" down"), downTimeout); err != nil {
		return err
	}

	r.ui.Info("Deleting the project's volumes")
	if err := r.removeVolumes(ctx, dc); err != nil {
		return err
	}

	r.ui.Info("Deleting the remote project folder")
	if r.dryRun {
		r.ui.Infof("[dry run] skipped rm -rf %s", dc.RemoteProjectDir())
		return nil
	}
	result, err := r.remote.Exec(ctx, system.RemoteCommand{
		Script:  "rm -rf -- " + system.ShellQuote(dc.RemoteProjectDir()),
		Timeout: removeTimeout,
	})
	if err != nil {
		return remoteError(err)
	}
	if !result.Success() {
		r.ui.Warningf("Some files could not be deleted: %s", strings.TrimSpace(result.Stderr))
		r.logger.Warn("remote folder not fully removed",
			zap.String("project", dc.ProjectName),
			zap.String("stderr", result.Stderr))
	}

	r.logger.Info("removed remote project", zap.String("project", dc.ProjectName), zap.String("host", dc.Host.Alias))
	return nil
}

func (r *Recreator) removeVolumes(ctx context.Context, dc *DeploymentContext) error {
	result, err := r.remote.Exec(ctx, system.RemoteCommand{
		Script:  dc.inProjectDir(dc.ComposeCommand() + " volumes --format json"),
		Timeout: volumeTimeout,
	})
	if err != nil {
		return remoteError(err)
	}
	if !result.Success() {
		return commandError("docker compose volumes", result)
	}

	volumes, err := system.ParseVolumeNames(result.Stdout)
	if err != nil {
		return err
	}
	if len(volumes) == 0 {
		r.ui.Debugf("no volumes to delete")
		return nil
	}

	quoted := make([]string, len(volumes))
	for i, v := range volumes {
		quoted[i] = system.ShellQuote(v)
	}
	r.logger.Info("removing volumes", zap.Strings("volumes", volumes))
	return r.run(ctx, "docker volume rm", "docker volume rm --force "+strings.Join(quoted, " "), volumeTimeout)
}

// run executes a mutating command, skipping it in dry-run mode.
func (r *Recreator) run(ctx context.Context, what, script string, timeout time.Duration) error {
	if r.dryRun {
		r.ui.Infof("[dry run] skipped %s", what)
		return nil
	}

	result, err := r.remote.Exec(ctx, system.RemoteCommand{Script: script, Timeout: timeout})
	if err != nil {
		return remoteError(err)
	}
	if !result.Success() {
		return commandError(what, result)
	}
	return nil
}
