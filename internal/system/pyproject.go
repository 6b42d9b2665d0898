package system

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// pyproject is the subset of pyproject.toml that lists dependencies, in both
// the PEP 621 and the Poetry layout.
type pyproject struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]interface{} `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// requirementName extracts the distribution name from a PEP 508 requirement
// such as "fastapi[standard]>=0.110".
func requirementName(req string) string {
	req = strings.TrimSpace(req)
	end := strings.IndexAny(req, "[<>=!~;@ (")
	if end >= 0 {
		req = req[:end]
	}
	return strings.ToLower(req)
}

// UsesFastAPI reports whether the Python project in dir depends on FastAPI.
// A missing pyproject.toml means no.
func UsesFastAPI(dir string) (bool, error) {
	var p pyproject
	_, err := toml.DecodeFile(filepath.Join(dir, "pyproject.toml"), &p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to parse pyproject.toml: %w", err)
	}

	for _, req := range p.Project.Dependencies {
		if requirementName(req) == "fastapi" {
			return true, nil
		}
	}
	for _, group := range p.Project.OptionalDependencies {
		for _, req := range group {
			if requirementName(req) == "fastapi" {
				return true, nil
			}
		}
	}
	for name := range p.Tool.Poetry.Dependencies {
		if strings.ToLower(name) == "fastapi" {
			return true, nil
		}
	}
	return false, nil
}
