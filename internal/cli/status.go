package cli

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/config"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/steps"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

// ErrNoSavedHost means status was asked for before any deployment saved a host.
var ErrNoSavedHost = errors.New("no SSH host saved yet; run deploy first")

// Status prints the last recorded deployment of the project and one snapshot
// of its services. Nothing is changed on the remote host.
func (d *Deployer) Status(ctx context.Context) error {
	project := filepath.Base(d.Options.ProjectDir)
	alias := d.Config.GetOrDefault(config.KeySSHHost, "")
	if alias == "" {
		return ErrNoSavedHost
	}

	host, err := d.Hosts.Lookup(alias)
	if err != nil {
		return err
	}

	files, err := system.DiscoverComposeFiles(d.Options.ProjectDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return steps.ErrNoComposeFile
	}

	dc := &steps.DeploymentContext{
		ProjectName:     project,
		ProjectDir:      d.Options.ProjectDir,
		Host:            host,
		RemoteParentDir: d.Config.GetOrDefault(config.KeyRemoteParentDir, path.Join("/home", host.User, "repos")),
		ComposeFiles:    files,
	}

	d.UI.Header(fmt.Sprintf("%s on %s", displayName(project), alias))
	d.UI.Infof("Host: %s", host)

	rec, err := d.Records.Load(alias, project)
	if err != nil {
		d.UI.Warningf("Could not read the deployment record: %v", err)
	} else if rec == nil {
		d.UI.Info("No deployment recorded from this machine")
	} else {
		d.UI.Infof("Last deployed commit %s on port %d at %s", rec.Commit, rec.Port, rec.DeployedAt.Local().Format("2006-01-02 15:04:05"))
	}
	d.showSavedAnswers()
	d.showOtherDeployments(alias, project)

	remote := d.Connect(host)
	defer remote.Close()

	statuses, err := steps.NewStatusMonitor(remote, d.UI, d.Logger, d.UI.Stdout()).Snapshot(ctx, dc)
	if err != nil {
		return err
	}
	steps.RenderSnapshot(d.UI.Stdout(), statuses)
	return nil
}

func (d *Deployer) showSavedAnswers() {
	d.UI.Infof("Configuration file: %s", d.Config.FilePath())
	answers := d.Config.GetAll()
	for _, key := range d.Config.Keys() {
		d.UI.Infof("  %s = %s", key, answers[key])
	}
}

// showOtherDeployments lists the other projects recorded for the host.
func (d *Deployer) showOtherDeployments(alias, project string) {
	records, err := d.Records.List()
	if err != nil {
		d.UI.Warningf("Could not list deployment records: %v", err)
		return
	}
	for _, rec := range records {
		if rec.Host != alias || rec.Project == project {
			continue
		}
		d.UI.Infof("Also deployed: %s (commit %s, port %d)", rec.Project, rec.Commit, rec.Port)
	}
}

// ErrUnknownAnswer means reset was asked to forget a key that is not saved.
var ErrUnknownAnswer = errors.New("no saved answer")

// ForgetAnswer removes one saved answer so the next deploy asks for it again.
func ForgetAnswer(app *App, key string) error {
	if !app.Config.Exists(key) {
		return fmt.Errorf("%w: %s", ErrUnknownAnswer, key)
	}
	if err := app.Config.Delete(key); err != nil {
		return fmt.Errorf("failed to forget %s: %w", key, err)
	}
	app.UI.Successf("Forgot saved answer %s", key)
	return nil
}

// Reset clears the deployment records and, when includeConfig is set, the
// saved answers.
func Reset(app *App, includeConfig bool) error {
	app.UI.Info("Removing deployment records...")
	if err := app.Records.RemoveAll(); err != nil {
		return fmt.Errorf("failed to remove records: %w", err)
	}
	app.UI.Success("Deployment records cleared")

	if includeConfig {
		app.UI.Info("Removing saved answers...")
		if err := app.Config.Reset(); err != nil {
			return err
		}
		app.UI.Successf("Configuration file deleted: %s", app.Config.FilePath())
	}
	return nil
}
