package system

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// composeFilePattern matches compose.yaml, docker-compose.yml,
// compose.override.yaml, docker-compose.prod.yml and so on.
var composeFilePattern = regexp.MustCompile(`(?i)^(?:docker-)?compose(?:\.[^']+)?\.ya?ml$`)

// canonicalComposeFiles are the base files Docker Compose loads by default.
var canonicalComposeFiles = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

// IsComposeFileName reports whether name looks like a Docker Compose file.
func IsComposeFileName(name string) bool {
	return composeFilePattern.MatchString(name)
}

// DiscoverComposeFiles lists the compose files at the top level of dir, with
// the canonical base file first and the rest sorted by name.
func DiscoverComposeFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read project directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !IsComposeFileName(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}

	return OrderComposeFiles(files), nil
}

// OrderComposeFiles sorts names and moves the first canonical base file to
// the front, since later files override earlier ones.
func OrderComposeFiles(files []string) []string {
	ordered := append([]string(nil), files...)
	sort.Strings(ordered)

	for i, name := range ordered {
		for _, canonical := range canonicalComposeFiles {
			if strings.EqualFold(name, canonical) {
				ordered = append(ordered[:i], ordered[i+1:]...)
				return append([]string{name}, ordered...)
			}
		}
	}
	return ordered
}

// ComposeCommand returns the docker compose invocation for the given files.
func ComposeCommand(files []string) string {
	var b strings.Builder
	b.WriteString("docker compose")
	for _, f := range files {
		b.WriteString(" -f ")
		b.WriteString(ShellQuote(f))
	}
	return b.String()
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ServiceStatus is one row of `docker compose ps`.
type ServiceStatus struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Status  string `json:"Status"`
}

// Running reports whether the container is in the running state.
func (s ServiceStatus) Running() bool {
	return strings.EqualFold(s.State, "running")
}

// decodeRecords decodes Docker CLI JSON output. Depending on the version,
// `--format json` prints either one object per line or a single array.
func decodeRecords[T any](out string) ([]T, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	if strings.HasPrefix(out, "[") {
		var records []T
		if err := json.Unmarshal([]byte(out), &records); err != nil {
			return nil, fmt.Errorf("failed to parse JSON array: %w", err)
		}
		return records, nil
	}

	var records []T
	dec := json.NewDecoder(strings.NewReader(out))
	for {
		var record T
		if err := dec.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse JSON line %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// ParseServiceStatuses parses `docker compose ps --format json`, keeping the
// order the tool reported.
func ParseServiceStatuses(out string) ([]ServiceStatus, error) {
	statuses, err := decodeRecords[ServiceStatus](out)
	if err != nil {
		return nil, fmt.Errorf("invalid compose ps output: %w", err)
	}
	for i, s := range statuses {
		if s.Name == "" {
			statuses[i].Name = s.Service
		}
	}
	return statuses, nil
}

// ParseVolumeNames parses `docker compose volumes --format json`.
func ParseVolumeNames(out string) ([]string, error) {
	type volume struct {
		Name string `json:"Name"`
	}
	volumes, err := decodeRecords[volume](out)
	if err != nil {
		return nil, fmt.Errorf("invalid compose volumes output: %w", err)
	}

	names := make([]string, 0, len(volumes))
	for _, v := range volumes {
		if v.Name != "" {
			names = append(names, v.Name)
		}
	}
	return names, nil
}

// ContainerInfo is the subset of `docker ps --format json` used for port
// conflict reporting.
type ContainerInfo struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Ports  string `json:"Ports"`
	Labels string `json:"Labels"`
}

// Label returns the value of a label from the comma-separated Labels column.
func (c ContainerInfo) Label(key string) string {
	for _, pair := range strings.Split(c.Labels, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ComposeWorkingDir returns the directory the container's compose project
// was started from, or "" for containers not managed by Compose.
func (c ContainerInfo) ComposeWorkingDir() string {
	return c.Label("com.docker.compose.project.working_dir")
}

// Publishes reports whether the container publishes port on the host.
// Ports looks like "0.0.0.0:8228->8000/tcp, :::8228->8000/tcp".
func (c ContainerInfo) Publishes(port int) bool {
	for _, mapping := range strings.Split(c.Ports, ",") {
		hostSide, _, ok := strings.Cut(strings.TrimSpace(mapping), "->")
		if !ok {
			continue
		}
		idx := strings.LastIndex(hostSide, ":")
		if idx < 0 {
			continue
		}
		if portInRange(hostSide[idx+1:], port) {
			return true
		}
	}
	return false
}

// portInRange matches "8228" or a range like "8000-8010".
func portInRange(spec string, port int) bool {
	low, high, isRange := strings.Cut(spec, "-")
	lo, err := strconv.Atoi(low)
	if err != nil {
		return false
	}
	if !isRange {
		return lo == port
	}
	hi, err := strconv.Atoi(high)
	if err != nil {
		return false
	}
	return port >= lo && port <= hi
}

// FindPortOwner parses `docker ps --format json` and returns the first
// container publishing port, or nil.
func FindPortOwner(out string, port int) (*ContainerInfo, error) {
	containers, err := decodeRecords[ContainerInfo](out)
	if err != nil {
		return nil, fmt.Errorf("invalid docker ps output: %w", err)
	}
	for i := range containers {
		if containers[i].Publishes(port) {
			return &containers[i], nil
		}
	}
	return nil, nil
}
