// Package steps implements the stages of a deployment attempt: building the
// deployment context, probing the remote project, planning the sync,
// removing a project for a recreate, syncing files, provisioning .env,
// launching the services and monitoring them.
package steps

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/common"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/config"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/ui"
)

// Prompter is the operator-facing surface used by the stages. *ui.UI
// implements it.
type Prompter interface {
	Info(msg string)
	Infof(format string, args ...interface{})
	Success(msg string)
	Successf(format string, args ...interface{})
	Warning(msg string)
	Warningf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Step(msg string)
	IsNonInteractive() bool

	PromptInput(prompt, defaultValue string, validate func(string) error) (string, error)
	PromptSelect(prompt string, options []string, defaultIndex int) (int, error)
	PromptYesNo(prompt string, defaultYes bool) (bool, error)
	PromptEditor(prompt string, opts ui.EditorOptions) (string, error)
}

// Repository is the local version-control view of the project.
type Repository interface {
	IsClean() (bool, error)
	ShortCommit() (string, error)
	TrackedFiles() ([]string, error)
	CoreEditor() string
}

// HostResolver resolves SSH aliases.
type HostResolver interface {
	Lookup(alias string) (*system.HostConfig, error)
}

// Connector returns a remote runner for a resolved host. Implementations
// should connect lazily.
type Connector func(host *system.HostConfig) system.RemoteRunner

// DeploymentContext is everything a deployment attempt needs to know about
// where and what it deploys. It is not modified after Build returns.
type DeploymentContext struct {
	ProjectName     string
	ProjectDir      string
	CommitID        string
	Host            *system.HostConfig
	RemoteParentDir string
	Port            int
	ComposeFiles    []string
}

// RemoteProjectDir is <RemoteParentDir>/<ProjectName>.
func (d *DeploymentContext) RemoteProjectDir() string {
	return path.Join(d.RemoteParentDir, d.ProjectName)
}

// ComposeCommand is the docker compose invocation with the merge order applied.
func (d *DeploymentContext) ComposeCommand() string {
	return system.ComposeCommand(d.ComposeFiles)
}

// inProjectDir prefixes a remote command with a cd into the project directory.
func (d *DeploymentContext) inProjectDir(command string) string {
	return "cd " + system.ShellQuote(d.RemoteProjectDir()) + " && " + command
}

const mergeOrderHeader = "# Choose the merge order of the compose files. Any files you remove will be skipped."

// ContextBuilder gathers and validates a DeploymentContext.
type ContextBuilder struct {
	cfg     *config.Config
	ui      Prompter
	repo    Repository
	hosts   HostResolver
	connect Connector
	logger  *zap.Logger

	// DryRun skips shutting down a stack that holds the port.
	DryRun bool
}

// NewContextBuilder creates a new ContextBuilder
func NewContextBuilder(cfg *config.Config, ui Prompter, repo Repository, hosts HostResolver, connect Connector, logger *zap.Logger) *ContextBuilder {
	return &ContextBuilder{
		cfg:     cfg,
		ui:      ui,
		repo:    repo,
		hosts:   hosts,
		connect: connect,
		logger:  logger,
	}
}

// Build resolves the context for deploying projectDir. The local checks run
// before any remote connection is made. On success the returned runner is
// the connection used for the port check; the caller owns it.
func (b *ContextBuilder) Build(ctx context.Context, projectDir string) (*DeploymentContext, system.RemoteRunner, error) {
	dc := &DeploymentContext{
		ProjectDir:  projectDir,
		ProjectName: filepath.Base(projectDir),
	}
	if err := common.ValidateProjectName(dc.ProjectName); err != nil {
		return nil, nil, fmt.Errorf("invalid project folder: %w", err)
	}

	clean, err := b.repo.IsClean()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check working tree: %w", err)
	}
	if !clean {
		return nil, nil, ErrDirtyWorkingTree
	}

	dc.CommitID, err = b.repo.ShortCommit()
	if err != nil {
		return nil, nil, err
	}
	b.ui.Infof("Preparing to deploy commit %s", dc.CommitID)

	dc.ComposeFiles, err = b.resolveComposeFiles(projectDir)
	if err != nil {
		return nil, nil, err
	}

	dc.Host, err = b.resolveHost()
	if err != nil {
		return nil, nil, err
	}
	b.logger.Info("resolved host",
		zap.String("project", dc.ProjectName),
		zap.String("commit", dc.CommitID),
		zap.String("host", dc.Host.Alias))

	remote := b.connect(dc.Host)
	ok := false
	defer func() {
		if !ok {
			remote.Close()
		}
	}()

	dc.Port, err = b.resolvePort(ctx, remote, dc)
	if err != nil {
		return nil, nil, err
	}

	dc.RemoteParentDir, err = b.resolveRemoteParentDir(dc.Host)
	if err != nil {
		return nil, nil, err
	}

	b.logger.Info("deployment context resolved",
		zap.String("project", dc.ProjectName),
		zap.String("host", dc.Host.Alias),
		zap.Int("port", dc.Port),
		zap.String("remote_dir", dc.RemoteProjectDir()),
		zap.Strings("compose_files", dc.ComposeFiles))

	ok = true
	return dc, remote, nil
}

func (b *ContextBuilder) resolveComposeFiles(projectDir string) ([]string, error) {
	files, err := system.DiscoverComposeFiles(projectDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoComposeFile
	}
	if len(files) > 1 {
		files, err = b.chooseMergeOrder(files)
		if err != nil {
			return nil, err
		}
	}

	if err := b.inspectComposeFiles(projectDir, files); err != nil {
		return nil, err
	}
	return files, nil
}

// inspectComposeFiles parses the selected files locally so a broken file
// fails before anything is sent.
func (b *ContextBuilder) inspectComposeFiles(projectDir string, files []string) error {
	usesPort := false
	var services []string
	for _, name := range files {
		summary, err := system.InspectComposeFile(filepath.Join(projectDir, name))
		if err != nil {
			return err
		}
		usesPort = usesPort || summary.UsesPort
		services = append(services, summary.Services...)
	}

	if len(services) == 0 {
		return fmt.Errorf("the compose files declare no services")
	}
	b.ui.Debugf("Compose services: %s", strings.Join(services, ", "))
	if !usesPort {
		b.ui.Warning("No compose file references $PORT; the chosen port will not reach the services")
	}
	return nil
}

func (b *ContextBuilder) chooseMergeOrder(files []string) ([]string, error) {
	b.ui.Info("Waiting for you to choose the merge order of the compose files")
	edited, err := b.ui.PromptEditor("Compose file merge order", ui.EditorOptions{
		Template: mergeOrderHeader + "\n" + strings.Join(files, "\n") + "\n",
		Command:  b.repo.CoreEditor(),
		FileName: "*.yaml",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to edit merge order: %w", err)
	}

	order, err := ParseMergeOrder(edited, files)
	if err != nil {
		return nil, err
	}
	b.ui.Infof("Compose files merge order: %s", strings.Join(order, ", "))
	return order, nil
}

// ParseMergeOrder reads the edited merge order. Comment and blank lines are
// ignored; an empty result cancels the deployment.
func ParseMergeOrder(edited string, available []string) ([]string, error) {
	known := make(map[string]bool, len(available))
	for _, f := range available {
		known[f] = true
	}

	var order []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(edited, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if !known[name] {
			return nil, fmt.Errorf("%q is not a Docker Compose file in this project", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%q is listed more than once", name)
		}
		seen[name] = true
		order = append(order, name)
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("no compose files selected: %w", ErrCancelled)
	}
	return order, nil
}

func (b *ContextBuilder) resolveHost() (*system.HostConfig, error) {
	alias, err := b.ui.PromptInput("SSH host", b.cfg.GetOrDefault(config.KeySSHHost, ""), common.ValidateHostAlias)
	if err != nil {
		return nil, err
	}
	alias = strings.TrimSpace(alias)
	if err := b.cfg.Set(config.KeySSHHost, alias); err != nil {
		return nil, fmt.Errorf("failed to save SSH host: %w", err)
	}

	b.ui.Debugf("Reading SSH configuration")
	host, err := b.hosts.Lookup(alias)
	if err != nil {
		if errors.Is(err, system.ErrHostNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrUnknownHost, err)
		}
		return nil, err
	}
	return host, nil
}

func (b *ContextBuilder) resolvePort(ctx context.Context, remote system.RemoteRunner, dc *DeploymentContext) (int, error) {
	checker := NewPortChecker(remote)
	current := strconv.Itoa(config.DefaultPort)
	if saved, err := b.cfg.GetInt(config.KeyPort); err == nil {
		current = strconv.Itoa(saved)
	}

	for {
		answer, err := b.ui.PromptInput("Service port", current, common.ValidatePort)
		if err != nil {
			return 0, err
		}
		port, _ := strconv.Atoi(strings.TrimSpace(answer))
		current = strconv.Itoa(port)

		decision, err := b.checkPort(ctx, remote, checker, port, dc.Host.Alias)
		if err != nil {
			return 0, err
		}
		if decision == portUsable {
			if err := b.cfg.Set(config.KeyPort, current); err != nil {
				return 0, fmt.Errorf("failed to save port: %w", err)
			}
			return port, nil
		}
	}
}

type portDecision int

const (
	// portRetry asks the operator for another port.
	portRetry portDecision = iota
	portUsable
	// portRecheck checks the same port again after its owner was shut down.
	portRecheck
)

// checkPort checks port until it is usable or another port is needed.
func (b *ContextBuilder) checkPort(ctx context.Context, remote system.RemoteRunner, checker *PortChecker, port int, alias string) (portDecision, error) {
	for {
		b.ui.Infof("Checking whether port %d is already in use on %s", port, alias)
		check, err := checker.Check(ctx, port)
		if err != nil {
			return portRetry, err
		}

		decision, err := b.handlePortCheck(ctx, remote, check)
		if err != nil || decision != portRecheck {
			return decision, err
		}
	}
}

// handlePortCheck decides what to do with a checked port. A busy port yields
// portRetry so the operator is asked again; in non-interactive mode it is an
// error instead.
func (b *ContextBuilder) handlePortCheck(ctx context.Context, remote system.RemoteRunner, check PortCheck) (portDecision, error) {
	if !check.Probed {
		b.ui.Warningf("Could not check port %d: neither ss nor docker is available on the remote host", check.Port)
		useAnyway, err := b.ui.PromptYesNo(fmt.Sprintf("Use port %d anyway?", check.Port), false)
		if err != nil {
			return portRetry, err
		}
		if !useAnyway && b.ui.IsNonInteractive() {
			return portRetry, fmt.Errorf("port %d could not be checked", check.Port)
		}
		if useAnyway {
			return portUsable, nil
		}
		return portRetry, nil
	}

	if !check.Bound {
		b.ui.Successf("Port %d is available", check.Port)
		return portUsable, nil
	}

	portErr := &PortUnavailableError{Port: check.Port}
	if check.Owner != nil {
		portErr.Owner = check.Owner.Names
	}
	b.ui.Warning(portErr.Error())
	b.logger.Warn("port unavailable", zap.Int("port", check.Port), zap.String("owner", portErr.Owner))

	if b.ui.IsNonInteractive() {
		return portRetry, portErr
	}

	workingDir := ""
	if check.Owner != nil {
		workingDir = check.Owner.ComposeWorkingDir()
	}
	if workingDir == "" {
		return portRetry, nil
	}

	shutDown, err := b.ui.PromptYesNo(fmt.Sprintf("Shut down the services in %s to free port %d?", workingDir, check.Port), false)
	if err != nil || !shutDown {
		return portRetry, err
	}
	if err := b.shutDownStack(ctx, remote, workingDir); err != nil {
		return portRetry, err
	}
	if b.DryRun {
		// nothing was shut down, so a new check would still find it bound
		return portUsable, nil
	}
	return portRecheck, nil
}

// shutDownStack runs `docker compose down` in another project's directory.
func (b *ContextBuilder) shutDownStack(ctx context.Context, remote system.RemoteRunner, workingDir string) error {
	b.ui.Infof("Shutting down the services in %s", workingDir)
	if b.DryRun {
		b.ui.Info("[dry run] skipped docker compose down")
		return nil
	}

	result, err := remote.Exec(ctx, system.RemoteCommand{
		Script:  "cd " + system.ShellQuote(workingDir) + " && docker compose down",
		Timeout: downTimeout,
	})
	if err != nil {
		return remoteError(err)
	}
	if !result.Success() {
		return commandError("docker compose down", result)
	}
	b.logger.Info("shut down stack holding port", zap.String("working_dir", workingDir))
	return nil
}

func (b *ContextBuilder) resolveRemoteParentDir(host *system.HostConfig) (string, error) {
	def := b.cfg.GetOrDefault(config.KeyRemoteParentDir, "")
	if def == "" {
		def = path.Join("/home", host.User, "repos")
	}

	dir, err := b.ui.PromptInput("Remote parent folder", def, common.ValidateRemoteDir)
	if err != nil {
		return "", err
	}
	dir = path.Clean(strings.TrimSpace(dir))
	if err := common.ValidateRemoteDir(dir); err != nil {
		return "", err
	}

	if err := b.cfg.Set(config.KeyRemoteParentDir, dir); err != nil {
		return "", fmt.Errorf("failed to save remote parent folder: %w", err)
	}
	return dir, nil
}
