package system

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// portVariable matches $PORT and ${PORT...} references.
var portVariable = regexp.MustCompile(`\$\{?PORT\b`)

// ComposeFileSummary is what a deployment needs to know about one local
// compose file before sending it anywhere.
type ComposeFileSummary struct {
	Name     string
	Services []string
	// UsesPort is true when the file interpolates $PORT.
	UsesPort bool
}

// composeDocument is the subset of the Compose file format read here.
type composeDocument struct {
	Services map[string]yaml.Node `yaml:"services"`
}

// ParseComposeFile parses compose file content. An override file may
// declare no services; an empty or malformed document is an error.
func ParseComposeFile(name string, content []byte) (*ComposeFileSummary, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}

	var doc composeDocument
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	summary := &ComposeFileSummary{
		Name:     name,
		UsesPort: portVariable.Match(content),
	}
	for service := range doc.Services {
		summary.Services = append(summary.Services, service)
	}
	sort.Strings(summary.Services)
	return summary, nil
}

// InspectComposeFile reads and parses a compose file from disk.
func InspectComposeFile(path string) (*ComposeFileSummary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}
	return ParseComposeFile(filepath.Base(path), content)
}
