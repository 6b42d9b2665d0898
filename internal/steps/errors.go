package steps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

var (
	// ErrDirtyWorkingTree means the local tree has uncommitted or untracked changes.
	ErrDirtyWorkingTree = errors.New("the working tree has uncommitted or untracked changes; commit or stash them first")
	// ErrNotGitRepository means the project directory is not a Git repository.
	ErrNotGitRepository = system.ErrNotGitRepository
	// ErrNoComposeFile means no Docker Compose file was found in the project root.
	ErrNoComposeFile = errors.New("no Docker Compose file found in the project folder")
	// ErrUnknownHost means the alias is not declared in the SSH configuration.
	ErrUnknownHost = errors.New("unknown SSH host")
	// ErrPortUnavailable means the service port is bound on the remote host.
	ErrPortUnavailable = errors.New("port unavailable")
	// ErrRemoteUnreachable means the remote host could not be reached or
	// stopped answering.
	ErrRemoteUnreachable = errors.New("remote host unreachable")
	// ErrDestructiveAction means a recreate was chosen but not confirmed.
	ErrDestructiveAction = errors.New("destructive action not confirmed")
	// ErrServiceLaunch means `docker compose up` failed.
	ErrServiceLaunch = errors.New("service launch failed")
	// ErrCancelled means the operator chose to stop.
	ErrCancelled = errors.New("deployment cancelled")
	// ErrEnvNotProvided means the .env editor was left empty.
	ErrEnvNotProvided = errors.New("no .env content provided")
)

// Stage names used to label errors.
const (
	StageContext  = "context"
	StageProbe    = "probe"
	StagePlan     = "plan"
	StageRecreate = "recreate"
	StageSync     = "sync"
	StageEnv      = "env"
	StageLaunch   = "launch"
	StageMonitor  = "monitor"
)

// StageError labels an error with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// PortUnavailableError reports a bound port and, when known, what holds it.
type PortUnavailableError struct {
	Port  int
	Owner string
}

func (e *PortUnavailableError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("port %d is already in use by %s", e.Port, e.Owner)
	}
	return fmt.Sprintf("port %d is already in use", e.Port)
}

func (e *PortUnavailableError) Is(target error) bool {
	return target == ErrPortUnavailable
}

// ServiceLaunchError carries the exit status and stderr of a failed launch.
type ServiceLaunchError struct {
	ExitCode int
	Stderr   string
}

func (e *ServiceLaunchError) Error() string {
	msg := fmt.Sprintf("docker compose up exited with status %d", e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ":\n" + stderr
	}
	return msg
}

func (e *ServiceLaunchError) Is(target error) bool {
	return target == ErrServiceLaunch
}

// remoteError maps transport failures onto ErrRemoteUnreachable.
func remoteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, system.ErrConnection) {
		return fmt.Errorf("%w: %w", ErrRemoteUnreachable, err)
	}
	return err
}

// commandError describes a remote command that ran but failed.
func commandError(what string, result *system.Result) error {
	stderr := strings.TrimSpace(result.Stderr)
	if stderr == "" {
		return fmt.Errorf("%s exited with status %d", what, result.ExitCode)
	}
	return fmt.Errorf("%s exited with status %d: %s", what, result.ExitCode, stderr)
}
