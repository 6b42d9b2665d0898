package steps

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

// Lines printed by the probe script.
const (
	probeFolderExists = "project folder exists"
	probeGitExists    = ".git folder exists"
	probeGitClean     = "Git is clean"
	probeEnvExists    = ".env file exists"
)

// RemoteProjectState is what the remote host holds for the project. It is
// computed once per attempt.
type RemoteProjectState struct {
	Present bool
	// Running is true when at least one compose service is running.
	Running    bool
	HasGitDir  bool
	GitClean   bool
	HasEnvFile bool
}

func (s RemoteProjectState) String() string {
	if !s.Present {
		return "absent"
	}
	parts := []string{"present"}
	if s.Running {
		parts = append(parts, "running")
	}
	if s.HasEnvFile {
		parts = append(parts, ".env")
	}
	return strings.Join(parts, ",")
}

// RemoteStateProbe inspects the remote project folder without changing it.
type RemoteStateProbe struct {
	remote system.RemoteRunner
	ui     Prompter
	logger *zap.Logger
}

// NewRemoteStateProbe creates a new RemoteStateProbe
func NewRemoteStateProbe(remote system.RemoteRunner, ui Prompter, logger *zap.Logger) *RemoteStateProbe {
	return &RemoteStateProbe{remote: remote, ui: ui, logger: logger}
}

// probeScript reports folder, .git, Git cleanliness and .env presence, one
// fact per line.
func probeScript(dir string) string {
	q := system.ShellQuote(dir)
	return fmt.Sprintf(`dir=%s
if [ -d "$dir" ]; then
    echo '%s'
    if [ -d "$dir/.git" ]; then
        echo '%s'
        if command -v git >/dev/null 2>&1 && [ -z "$(git -C "$dir" status --porcelain 2>/dev/null)" ]; then
            echo '%s'
        fi
    fi
    if [ -f "$dir/.env" ]; then
        echo '%s'
    fi
fi
`, q, probeFolderExists, probeGitExists, probeGitClean, probeEnvExists)
}

// parseProbeOutput maps the probe script's lines onto a state.
func parseProbeOutput(out string) RemoteProjectState {
	var state RemoteProjectState
	for _, line := range strings.Split(out, "\n") {
		switch strings.TrimSpace(line) {
		case probeFolderExists:
			state.Present = true
		case probeGitExists:
			state.HasGitDir = true
		case probeGitClean:
			state.GitClean = true
		case probeEnvExists:
			state.HasEnvFile = true
		}
	}
	return state
}

// Probe reports the state of dc's remote project folder.
func (p *RemoteStateProbe) Probe(ctx context.Context, dc *DeploymentContext) (RemoteProjectState, error) {
	p.ui.Infof("Checking the status of the %s project on %s", dc.ProjectName, dc.Host.Alias)

	result, err := p.remote.Exec(ctx, system.RemoteCommand{Script: probeScript(dc.RemoteProjectDir())})
	if err != nil {
		return RemoteProjectState{}, remoteError(err)
	}
	if !result.Success() {
		return RemoteProjectState{}, commandError("remote status check", result)
	}

	state := parseProbeOutput(result.Stdout)
	if state.Present {
		state.Running, err = p.anyRunning(ctx, dc)
		if err != nil {
			return RemoteProjectState{}, err
		}
	}

	p.report(dc, state)
	p.logger.Info("probed remote project",
		zap.String("project", dc.ProjectName),
		zap.String("host", dc.Host.Alias),
		zap.Stringer("state", state))
	return state, nil
}

func (p *RemoteStateProbe) anyRunning(ctx context.Context, dc *DeploymentContext) (bool, error) {
	result, err := p.remote.Exec(ctx, system.RemoteCommand{
		Script: dc.inProjectDir(dc.ComposeCommand() + " ps --format json"),
	})
	if err != nil {
		return false, remoteError(err)
	}
	if !result.Success() {
		// e.g. the compose files are not there yet
		p.ui.Debugf("compose ps in the remote folder failed: %s", strings.TrimSpace(result.Stderr))
		return false, nil
	}

	statuses, err := system.ParseServiceStatuses(result.Stdout)
	if err != nil {
		return false, err
	}
	for _, s := range statuses {
		if s.Running() {
			return true, nil
		}
	}
	return false, nil
}

func (p *RemoteStateProbe) report(dc *DeploymentContext, state RemoteProjectState) {
	switch {
	case !state.Present:
		p.ui.Infof("The %s project does not yet exist on %s", dc.ProjectName, dc.Host.Alias)
	case !state.HasGitDir:
		p.ui.Infof("A folder named %q already exists on %s", dc.ProjectName, dc.Host.Alias)
	case state.GitClean:
		p.ui.Infof("The %s project already exists on %s and its Git is clean", dc.ProjectName, dc.Host.Alias)
	default:
		p.ui.Warningf("The %s project already exists on %s, but its Git is dirty", dc.ProjectName, dc.Host.Alias)
	}
	if state.Running {
		p.ui.Infof("Services of %s are running on %s", dc.ProjectName, dc.Host.Alias)
	}
}
