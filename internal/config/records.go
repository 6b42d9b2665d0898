package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Record describes the last successful deployment of a project to a host.
type Record struct {
	Host       string    `json:"host"`
	Project    string    `json:"project"`
	Commit     string    `json:"commit"`
	Port       int       `json:"port"`
	RemoteDir  string    `json:"remote_dir"`
	DeployedAt time.Time `json:"deployed_at"`
}

// Records manages one record file per host and project
type Records struct {
	dir string
}

// NewRecords creates a new Records instance. An empty dir selects
// <state dir>/records.
func NewRecords(dir string) *Records {
	if dir == "" {
		dir = filepath.Join(StateDir(), "records")
	}

	return &Records{
		dir: dir,
	}
}

// recordName ensures the name is safe and doesn't contain path traversal characters
func recordName(host, project string) (string, error) {
	for _, part := range []string{host, project} {
		if part == "" {
			return "", fmt.Errorf("record host and project cannot be empty")
		}
		if strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return "", fmt.Errorf("invalid record name component: %s", part)
		}
	}
	return host + "__" + project, nil
}

// Save writes the record, replacing any earlier one for the same host and project
func (r *Records) Save(rec Record) error {
	name, err := recordName(rec.Host, rec.Project)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	content, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tmp := filepath.Join(r.dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, append(content, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write record file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(r.dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write record file: %w", err)
	}
	return nil
}

// Load returns the record for host and project, or nil if none exists
func (r *Records) Load(host, project string) (*Record, error) {
	name, err := recordName(host, project)
	if err != nil {
		return nil, err
	}
	return r.read(filepath.Join(r.dir, name))
}

func (r *Records) read(path string) (*Record, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// Remove deletes the record for host and project
func (r *Records) Remove(host, project string) error {
	name, err := recordName(host, project)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(r.dir, name))
	if os.IsNotExist(err) {
		return nil // Not an error if it doesn't exist
	}
	return err
}

// RemoveAll removes all record files
func (r *Records) RemoveAll() error {
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		return nil // Directory doesn't exist, nothing to remove
	}

	return os.RemoveAll(r.dir)
}

// List returns all records, most recent first
func (r *Records) List() ([]Record, error) {
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		return []Record{}, nil
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read records directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		rec, err := r.read(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].DeployedAt.After(records[j].DeployedAt)
	})
	return records, nil
}

// Dir returns the records directory path
func (r *Records) Dir() string {
	return r.dir
}
