package system

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// ErrHostNotFound is returned when an alias is not declared in the SSH config.
var ErrHostNotFound = errors.New("SSH host not found")

// HostConfig holds the connection parameters for one SSH alias.
type HostConfig struct {
	Alias        string
	HostName     string
	Port         int
	User         string
	IdentityFile string
}

// String returns user@host:port for messages.
func (h *HostConfig) String() string {
	return fmt.Sprintf("%s@%s:%d", h.User, h.HostName, h.Port)
}

// SSHConfig reads host aliases from an OpenSSH client configuration file.
type SSHConfig struct {
	path string
	cfg  *ssh_config.Config
}

// DefaultSSHConfigPath returns ~/.ssh/config.
func DefaultSSHConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", "config"), nil
}

// LoadSSHConfig parses the SSH client configuration at path.
func LoadSSHConfig(path string) (*SSHConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SSH config: %w", err)
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH config %s: %w", path, err)
	}

	return &SSHConfig{path: path, cfg: cfg}, nil
}

// Path returns the file the configuration was read from.
func (s *SSHConfig) Path() string {
	return s.path
}

// Aliases returns every literal (non-wildcard) host alias in file order.
func (s *SSHConfig) Aliases() []string {
	var aliases []string
	for _, host := range s.cfg.Hosts {
		for _, pattern := range host.Patterns {
			p := pattern.String()
			if strings.ContainsAny(p, "*?!") {
				continue
			}
			aliases = append(aliases, p)
		}
	}
	return aliases
}

// Lookup resolves an alias to connection parameters. The alias must appear
// literally on a Host line; wildcard-only matches are treated as unknown.
func (s *SSHConfig) Lookup(alias string) (*HostConfig, error) {
	found := false
	for _, a := range s.Aliases() {
		if a == alias {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q is not defined in %s", ErrHostNotFound, alias, s.path)
	}

	host := &HostConfig{Alias: alias}

	host.HostName = s.get(alias, "HostName")
	if host.HostName == "" {
		host.HostName = alias
	}

	portStr := s.get(alias, "Port")
	if portStr == "" {
		portStr = ssh_config.Default("Port")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Port %q for SSH host %s: %w", portStr, alias, err)
	}
	host.Port = port

	host.User = s.get(alias, "User")
	if host.User == "" {
		if current, err := user.Current(); err == nil {
			host.User = current.Username
		}
	}
	if host.User == "" {
		return nil, fmt.Errorf("SSH host %s has no User and the local user is unknown", alias)
	}

	if identity := s.get(alias, "IdentityFile"); identity != "" {
		host.IdentityFile = expandHome(identity)
	}

	return host, nil
}

func (s *SSHConfig) get(alias, key string) string {
	value, err := s.cfg.Get(alias, key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

// expandHome replaces a leading ~ with the local home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
