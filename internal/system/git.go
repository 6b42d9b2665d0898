package system

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// ErrNotGitRepository is returned when the project directory has no repository.
var ErrNotGitRepository = errors.New("not a Git repository")

// shortHashLength matches `git rev-parse --short` for small repositories.
const shortHashLength = 7

// GitRepository answers the questions a deployment asks of the local
// working tree, using go-git instead of the git executable.
type GitRepository struct {
	repo *git.Repository
	path string
}

// OpenGitRepository opens the repository whose working tree is at path.
func OpenGitRepository(path string) (*GitRepository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotGitRepository, path)
	}
	return &GitRepository{repo: repo, path: path}, nil
}

// IsClean reports whether there are no staged, unstaged or untracked changes.
// Files ignored by .gitignore, .git/info/exclude or the user's and system's
// core.excludesfile do not count.
func (r *GitRepository) IsClean() (bool, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to open worktree: %w", err)
	}

	excludes, err := globalExcludes(osfs.New("/"))
	if err != nil {
		return false, fmt.Errorf("failed to read global excludes: %w", err)
	}
	worktree.Excludes = append(worktree.Excludes, excludes...)

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}

	return status.IsClean(), nil
}

// globalExcludes loads the patterns git applies outside the repository:
// core.excludesfile from /etc/gitconfig and ~/.gitconfig, or the XDG
// git/ignore file when the user sets no core.excludesfile.
func globalExcludes(fs billy.Filesystem) ([]gitignore.Pattern, error) {
	patterns, err := gitignore.LoadSystemPatterns(fs)
	if err != nil {
		return nil, err
	}

	global, err := gitignore.LoadGlobalPatterns(fs)
	if err != nil {
		return nil, err
	}
	if len(global) == 0 {
		global, err = readExcludesFile(fs, xdgIgnoreFile())
		if err != nil {
			return nil, err
		}
	}
	return append(patterns, global...), nil
}

func xdgIgnoreFile() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "git", "ignore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "git", "ignore")
}

func readExcludesFile(fs billy.Filesystem, path string) ([]gitignore.Pattern, error) {
	if path == "" {
		return nil, nil
	}
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns, scanner.Err()
}

// ShortCommit returns the abbreviated hash of HEAD.
func (r *GitRepository) ShortCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return head.Hash().String()[:shortHashLength], nil
}

// TrackedFiles lists every path in the index, slash-separated and sorted.
func (r *GitRepository) TrackedFiles() ([]string, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	seen := make(map[string]bool, len(idx.Entries))
	files := make([]string, 0, len(idx.Entries))
	for _, entry := range idx.Entries {
		// Entries in conflict appear once per stage.
		if seen[entry.Name] {
			continue
		}
		seen[entry.Name] = true
		files = append(files, entry.Name)
	}
	sort.Strings(files)

	return files, nil
}

// CoreEditor returns core.editor from the repository, global or system
// configuration, or "" when none is set.
func (r *GitRepository) CoreEditor() string {
	for _, scope := range []config.Scope{config.LocalScope, config.GlobalScope, config.SystemScope} {
		cfg, err := r.repo.ConfigScoped(scope)
		if err != nil {
			continue
		}
		if editor := strings.TrimSpace(cfg.Raw.Section("core").Option("editor")); editor != "" {
			return editor
		}
	}
	return ""
}
