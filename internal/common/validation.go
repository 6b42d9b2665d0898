package common

import (
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
)

// ValidateIP validates an IPv4 or IPv6 address
func ValidateIP(ip string) error {
	if net.ParseIP(strings.TrimSpace(ip)) == nil {
		return fmt.Errorf("invalid IP address: %s", ip)
	}
	return nil
}

// ValidatePort validates a port number (1-65535)
func ValidatePort(port string) error {
	p, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil {
		return fmt.Errorf("invalid port number: %s", port)
	}

	if p < 1 || p > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", p)
	}

	return nil
}

// ValidatePath validates that a remote (POSIX) path is absolute
func ValidatePath(p string) error {
	if !path.IsAbs(p) {
		return fmt.Errorf("path must be absolute: %s", p)
	}
	return nil
}

// ValidateRemoteDir validates a remote parent directory. Remote commands
// single-quote it, so it may not contain a quote, and it may not be the root.
func ValidateRemoteDir(dir string) error {
	if err := ValidatePath(dir); err != nil {
		return err
	}
	if strings.Contains(dir, "'") {
		return fmt.Errorf("path cannot contain a single quote: %s", dir)
	}
	if path.Clean(dir) == "/" {
		return fmt.Errorf("path cannot be the root directory")
	}
	return nil
}

// ValidateProjectName validates the local project directory name used as
// the remote folder name.
func ValidateProjectName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if name == "/" || name == "." || name == ".." {
		return fmt.Errorf("invalid project name: %s", name)
	}
	if strings.ContainsAny(name, "'/") {
		return fmt.Errorf("project name cannot contain a quote or slash: %s", name)
	}
	return nil
}

// ValidateHostAlias validates an SSH host alias as typed by the operator
func ValidateHostAlias(alias string) error {
	if strings.TrimSpace(alias) == "" {
		return fmt.Errorf("host alias cannot be empty")
	}
	if strings.ContainsAny(alias, " \t*?!'") {
		return fmt.Errorf("host alias must be a single literal name: %s", alias)
	}
	return nil
}
