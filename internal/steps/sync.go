package steps

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

// ManifestName is the remote file listing the tracked files of the last sync.
const ManifestName = ".deploy-manifest"

// envFileName is provisioned separately and never synced or pruned.
const envFileName = ".env"

// neverPruned lists remote files the manifest diff must leave alone.
var neverPruned = map[string]bool{envFileName: true, ManifestName: true}

// transferSet drops files that are managed outside of the sync.
func transferSet(tracked []string) (files []string, skipped []string) {
	for _, f := range tracked {
		if neverPruned[f] {
			skipped = append(skipped, f)
			continue
		}
		files = append(files, f)
	}
	return files, skipped
}

// parseManifest reads one path per line.
func parseManifest(content string) []string {
	var files []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}

// staleFiles returns the paths in previous that are not in current, sorted.
func staleFiles(previous, current []string) []string {
	keep := make(map[string]bool, len(current))
	for _, f := range current {
		keep[f] = true
	}

	var stale []string
	for _, f := range previous {
		if keep[f] || neverPruned[f] {
			continue
		}
		stale = append(stale, f)
	}
	sort.Strings(stale)
	return stale
}

// FileSync makes the remote folder hold exactly the Git-tracked files. Files
// removed from Git since the last sync are deleted using the remote manifest;
// untracked remote files such as bind-mounted data are left alone.
type FileSync struct {
	syncer system.FileSyncer
	remote system.RemoteRunner
	ui     Prompter
	logger *zap.Logger
	dryRun bool
}

// NewFileSync creates a new FileSync
func NewFileSync(syncer system.FileSyncer, remote system.RemoteRunner, ui Prompter, logger *zap.Logger, dryRun bool) *FileSync {
	return &FileSync{syncer: syncer, remote: remote, ui: ui, logger: logger, dryRun: dryRun}
}

// Sync transfers tracked and prunes what the previous sync left behind. It
// returns the pruned paths.
func (s *FileSync) Sync(ctx context.Context, dc *DeploymentContext, tracked []string) ([]string, error) {
	files, skipped := transferSet(tracked)
	for _, f := range skipped {
		s.ui.Warningf("%s is tracked by Git but is managed separately; it will not be synced", f)
	}
	if len(files) == 0 {
		return nil, errors.New("no tracked files to sync")
	}

	dir := dc.RemoteProjectDir()
	if err := s.exec(ctx, "mkdir", system.RemoteCommand{Script: "mkdir -p -- " + system.ShellQuote(dir)}); err != nil {
		return nil, err
	}

	previous, err := s.readManifest(ctx, dc)
	if err != nil {
		return nil, err
	}

	s.ui.Infof("Syncing %d files to %s:%s", len(files), dc.Host.Alias, dir)
	if s.dryRun {
		s.ui.Info("[dry run] skipped rsync")
	} else {
		err := s.syncer.Sync(ctx, system.SyncRequest{
			SourceDir:   dc.ProjectDir,
			Files:       files,
			Destination: dc.Host.Alias + ":" + dir,
		})
		if err != nil {
			return nil, remoteError(err)
		}
	}

	stale := staleFiles(previous, files)
	if len(stale) > 0 {
		s.ui.Infof("Removing %d files no longer tracked by Git", len(stale))
		quoted := make([]string, len(stale))
		for i, f := range stale {
			quoted[i] = system.ShellQuote(f)
		}
		if err := s.exec(ctx, "rm", system.RemoteCommand{Script: dc.inProjectDir("rm -f -- " + strings.Join(quoted, " "))}); err != nil {
			return nil, err
		}
	}

	manifest := strings.Join(files, "\n") + "\n"
	err = s.exec(ctx, "manifest write", system.RemoteCommand{
		Script: dc.inProjectDir("cat > " + ManifestName),
		Stdin:  []byte(manifest),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("synced files",
		zap.String("project", dc.ProjectName),
		zap.String("host", dc.Host.Alias),
		zap.Int("files", len(files)),
		zap.Strings("pruned", stale))
	return stale, nil
}

func (s *FileSync) readManifest(ctx context.Context, dc *DeploymentContext) ([]string, error) {
	path := dc.RemoteProjectDir() + "/" + ManifestName
	result, err := s.remote.Exec(ctx, system.RemoteCommand{
		Script: "cat -- " + system.ShellQuote(path) + " 2>/dev/null || true",
	})
	if err != nil {
		return nil, remoteError(err)
	}
	if !result.Success() {
		return nil, commandError("manifest read", result)
	}
	return parseManifest(result.Stdout), nil
}

// exec runs a mutating remote command, skipping it in dry-run mode.
func (s *FileSync) exec(ctx context.Context, what string, cmd system.RemoteCommand) error {
	if s.dryRun {
		s.ui.Debugf("[dry run] skipped %s", what)
		return nil
	}
	result, err := s.remote.Exec(ctx, cmd)
	if err != nil {
		return remoteError(err)
	}
	if !result.Success() {
		return commandError(what, result)
	}
	return nil
}
