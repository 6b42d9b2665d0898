// Package system wraps the external collaborators of a deployment: local
// processes, the remote SSH session, the SSH client configuration, the local
// Git repository, rsync and the Docker Compose CLI output formats. Nothing in
// here makes deployment decisions.
package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Result is the structured outcome of a command, local or remote.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// CommandRunner defines an interface for running local commands.
// A non-zero exit is reported through Result.ExitCode, not as an error; the
// error is reserved for commands that could not be run at all.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// ExecCommandRunner executes commands on the local machine.
type ExecCommandRunner struct{}

// NewCommandRunner returns a default command runner implementation.
func NewCommandRunner() CommandRunner {
	return &ExecCommandRunner{}
}

// Run executes a command and captures stdout and stderr separately.
func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return result, nil
}

// CommandExists checks if a command is available in PATH
func CommandExists(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// MissingCommands returns the subset of commands that are not in PATH.
func MissingCommands(commands ...string) []string {
	var missing []string
	for _, c := range commands {
		if !CommandExists(c) {
			missing = append(missing, c)
		}
	}
	return missing
}
