package system

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// SyncRequest describes one transfer of an explicit file list.
type SyncRequest struct {
	// SourceDir is the local directory the file list is relative to.
	// rsync resolves --files-from entries against it.
	SourceDir string
	// Files are slash-separated paths relative to SourceDir.
	Files []string
	// Destination is an rsync remote spec, e.g. alias:/home/chris/repos/app.
	Destination string
}

// FileSyncer copies files to the remote host.
type FileSyncer interface {
	Sync(ctx context.Context, req SyncRequest) error
}

// rsyncConnectionCodes are exit statuses caused by the transport rather than
// by the transfer itself (socket I/O, protocol stream, timeouts, ssh).
var rsyncConnectionCodes = map[int]bool{10: true, 12: true, 30: true, 35: true, 255: true}

// Rsync implements FileSyncer by running rsync over ssh.
type Rsync struct {
	runner CommandRunner
	// IOTimeout ends a transfer that sends or receives nothing for this long
	// (rsync exits with status 30).
	IOTimeout time.Duration
	// ConnectTimeout bounds ssh's connection setup (ssh exits with 255).
	ConnectTimeout time.Duration
}

// NewRsync creates a syncer that runs rsync through the given runner.
func NewRsync(runner CommandRunner) *Rsync {
	return &Rsync{
		runner:         runner,
		IOTimeout:      60 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// seconds rounds d up to whole seconds, at least one.
func seconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// Args builds the rsync argument list for a transfer whose file list has
// been written to filesFrom. BatchMode keeps ssh from waiting on a password
// prompt nobody can see.
func (r *Rsync) Args(filesFrom string, req SyncRequest) []string {
	return []string{
		"--quiet",
		"--compress",
		fmt.Sprintf("--rsh=ssh -o BatchMode=yes -o ConnectTimeout=%d", seconds(r.ConnectTimeout)),
		fmt.Sprintf("--timeout=%d", seconds(r.IOTimeout)),
		"--perms",
		"--times",
		"--group",
		"--files-from=" + filesFrom,
		req.SourceDir,
		req.Destination,
	}
}

// Sync transfers exactly req.Files. The list is handed to rsync through a
// temporary file so paths with spaces survive unquoted.
func (r *Rsync) Sync(ctx context.Context, req SyncRequest) error {
	if len(req.Files) == 0 {
		return fmt.Errorf("no files to sync")
	}

	listFile, err := os.CreateTemp("", "deploy-files-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create file list: %w", err)
	}
	defer os.Remove(listFile.Name())

	if _, err := listFile.WriteString(strings.Join(req.Files, "\n") + "\n"); err != nil {
		listFile.Close()
		return fmt.Errorf("failed to write file list: %w", err)
	}
	if err := listFile.Close(); err != nil {
		return fmt.Errorf("failed to close file list: %w", err)
	}

	result, err := r.runner.Run(ctx, "rsync", r.Args(listFile.Name(), req)...)
	if err != nil {
		return err
	}
	if rsyncConnectionCodes[result.ExitCode] {
		return fmt.Errorf("%w: rsync exited with status %d: %s", ErrConnection, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	if !result.Success() {
		return fmt.Errorf("rsync exited with status %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}
