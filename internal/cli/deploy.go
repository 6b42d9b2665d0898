package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/config"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/steps"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/ui"
)

// RequiredCommands must be installed locally before the remote is contacted.
var RequiredCommands = []string{"rsync", "ssh"}

// Deployer runs one deployment attempt. Every field is required except
// MonitorContext.
type Deployer struct {
	Config  *config.Config
	Records *config.Records
	UI      Terminal
	Logger  *zap.Logger
	Repo    steps.Repository
	Hosts   steps.HostResolver
	Connect steps.Connector
	Syncer  system.FileSyncer
	Options Options

	// MonitorContext derives the context monitoring runs under. It defaults
	// to one cancelled by SIGINT or SIGTERM.
	MonitorContext func(ctx context.Context) (context.Context, context.CancelFunc)
}

// CheckRequiredCommands fails when a local tool the attempt runs is missing.
func CheckRequiredCommands() error {
	if missing := system.MissingCommands(RequiredCommands...); len(missing) > 0 {
		return fmt.Errorf("required commands not found: %s", strings.Join(missing, ", "))
	}
	return nil
}

// NewDeployer opens the project's Git repository and the SSH configuration.
func NewDeployer(app *App) (*Deployer, error) {
	repo, err := system.OpenGitRepository(app.Options.ProjectDir)
	if err != nil {
		return nil, &steps.StageError{Stage: steps.StageContext, Err: err}
	}

	sshConfigPath, err := system.DefaultSSHConfigPath()
	if err != nil {
		return nil, err
	}
	hosts, err := system.LoadSSHConfig(sshConfigPath)
	if err != nil {
		return nil, &steps.StageError{Stage: steps.StageContext, Err: err}
	}
	app.Logger.Debug("loaded SSH config", zap.String("path", hosts.Path()), zap.Strings("hosts", hosts.Aliases()))

	return &Deployer{
		Config:  app.Config,
		Records: app.Records,
		UI:      app.UI,
		Logger:  app.Logger,
		Repo:    repo,
		Hosts:   hosts,
		Connect: SSHConnector(app.Config),
		Syncer:  RsyncSyncer(app.Config, system.NewCommandRunner()),
		Options: app.Options,
	}, nil
}

// SSHConnector returns a Connector using the saved SSH timeouts.
func SSHConnector(cfg *config.Config) steps.Connector {
	sshConfig := system.DefaultSSHClientConfig()
	if d, err := cfg.GetDuration(config.KeyCommandTimeout); err == nil {
		sshConfig.CommandTimeout = d
	}
	if d, err := cfg.GetDuration(config.KeyConnectTimeout); err == nil {
		sshConfig.ConnectTimeout = d
	}
	return func(host *system.HostConfig) system.RemoteRunner {
		return system.NewSSHClient(host, sshConfig)
	}
}

// RsyncSyncer returns an rsync FileSyncer using the saved sync and connect
// timeouts.
func RsyncSyncer(cfg *config.Config, runner system.CommandRunner) *system.Rsync {
	rsync := system.NewRsync(runner)
	if d, err := cfg.GetDuration(config.KeySyncTimeout); err == nil && d > 0 {
		rsync.IOTimeout = d
	}
	if d, err := cfg.GetDuration(config.KeyConnectTimeout); err == nil && d > 0 {
		rsync.ConnectTimeout = d
	}
	return rsync
}

// displayName turns "url-shortener" into "Url Shortener".
func displayName(project string) string {
	words := strings.NewReplacer("-", " ", "_", " ").Replace(project)
	return cases.Title(language.English).String(words)
}

func stageError(stage string, err error) error {
	if errors.Is(err, ui.ErrInterrupted) {
		err = fmt.Errorf("%w: %w", steps.ErrCancelled, err)
	}
	return &steps.StageError{Stage: stage, Err: err}
}

// Run executes the attempt. Monitoring stopped by the operator is a
// success; every earlier failure is returned as a *steps.StageError.
func (d *Deployer) Run(ctx context.Context) error {
	dryRun := d.Options.DryRun

	builder := steps.NewContextBuilder(d.Config, d.UI, d.Repo, d.Hosts, d.Connect, d.Logger)
	builder.DryRun = dryRun
	dc, remote, err := builder.Build(ctx, d.Options.ProjectDir)
	if err != nil {
		return stageError(steps.StageContext, err)
	}
	defer remote.Close()

	d.UI.Header("Deploying " + displayName(dc.ProjectName))
	if dryRun {
		d.UI.Warning("Dry run: nothing will be changed on " + dc.Host.Alias)
	}
	log := d.Logger.With(
		zap.String("project", dc.ProjectName),
		zap.String("host", dc.Host.Alias),
		zap.String("commit", dc.CommitID))

	state, err := steps.NewRemoteStateProbe(remote, d.UI, d.Logger).Probe(ctx, dc)
	if err != nil {
		return stageError(steps.StageProbe, err)
	}

	plan, err := steps.NewSyncPlanner(d.UI, d.Logger).Plan(dc, state)
	if err != nil {
		return stageError(steps.StagePlan, err)
	}
	if plan.Kind == steps.PlanCancel {
		return stageError(steps.StagePlan, steps.ErrCancelled)
	}

	// The .env content is asked for before anything remote changes, so an
	// empty answer leaves the remote as it was.
	var env *steps.EnvProvisioner
	envContent := ""
	if plan.ProvisionEnv {
		env = steps.NewEnvProvisioner(d.Config, remote, d.UI, d.Logger, d.Repo.CoreEditor(), dryRun)
		if envContent, err = env.Collect(dc); err != nil {
			return stageError(steps.StageEnv, err)
		}
	}

	if plan.DeleteExisting {
		d.UI.Step("Removing the existing project")
		if err := steps.NewRecreator(remote, d.UI, d.Logger, dryRun).Remove(ctx, dc); err != nil {
			return stageError(steps.StageRecreate, err)
		}
		if !dryRun {
			d.forgetRecord(dc)
		}
	}

	d.UI.Step("Syncing files")
	tracked, err := d.Repo.TrackedFiles()
	if err != nil {
		return stageError(steps.StageSync, err)
	}
	if _, err := steps.NewFileSync(d.Syncer, remote, d.UI, d.Logger, dryRun).Sync(ctx, dc, tracked); err != nil {
		return stageError(steps.StageSync, err)
	}

	if env != nil {
		d.UI.Step("Creating the remote .env file")
		if err := env.Write(ctx, dc, envContent); err != nil {
			return stageError(steps.StageEnv, err)
		}
	}

	d.UI.Step("Starting the services")
	if err := steps.NewServiceLauncher(remote, d.UI, d.Logger, dryRun).Launch(ctx, dc); err != nil {
		return stageError(steps.StageLaunch, err)
	}

	if dryRun {
		log.Info("dry run complete", zap.Stringer("plan", plan.Kind))
		d.UI.Success("Dry run complete")
		return nil
	}

	d.saveRecord(dc)

	monitor := steps.NewStatusMonitor(remote, d.UI, d.Logger, d.UI.Stdout())
	if interval := d.pollInterval(); interval > 0 {
		monitor.Interval = interval
	}
	if n, err := d.Config.GetInt(config.KeyMaxPollFailures); err == nil && n > 0 {
		monitor.MaxFailures = n
	}

	monitorCtx, stop := d.monitorContext(ctx)
	defer stop()
	if err := monitor.Run(monitorCtx, dc); err != nil {
		return stageError(steps.StageMonitor, err)
	}

	log.Info("deployment attempt complete", zap.Stringer("plan", plan.Kind), zap.Int("port", dc.Port))
	d.UI.Success("Deployment attempt complete")
	return nil
}

func (d *Deployer) monitorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.MonitorContext != nil {
		return d.MonitorContext(ctx)
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func (d *Deployer) pollInterval() time.Duration {
	if d.Options.Interval > 0 {
		return d.Options.Interval
	}
	interval, err := d.Config.GetDuration(config.KeyPollInterval)
	if err != nil {
		d.UI.Warningf("Ignoring poll interval: %v", err)
		return 0
	}
	return interval
}

// forgetRecord removes the record of a project whose remote folder is gone.
func (d *Deployer) forgetRecord(dc *steps.DeploymentContext) {
	if err := d.Records.Remove(dc.Host.Alias, dc.ProjectName); err != nil {
		d.Logger.Warn("failed to remove deployment record", zap.Error(err))
	}
}

// saveRecord stores the launch; a failure here does not fail the attempt.
func (d *Deployer) saveRecord(dc *steps.DeploymentContext) {
	err := d.Records.Save(config.Record{
		Host:       dc.Host.Alias,
		Project:    dc.ProjectName,
		Commit:     dc.CommitID,
		Port:       dc.Port,
		RemoteDir:  dc.RemoteProjectDir(),
		DeployedAt: time.Now().UTC(),
	})
	if err != nil {
		d.UI.Warningf("Could not record the deployment: %v", err)
		d.Logger.Warn("failed to save deployment record", zap.Error(err))
	}
}
