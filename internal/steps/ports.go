package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

// exitCommandNotFound is the shell's status for a missing command.
const exitCommandNotFound = 127

// PortCheck is the outcome of checking one port on the remote host.
type PortCheck struct {
	Port int
	// Probed is false when neither ss nor docker could be run.
	Probed bool
	Bound  bool
	// Owner is the container publishing the port, when docker knows it.
	Owner *system.ContainerInfo
}

// PortChecker checks whether a TCP port is bound on the remote host.
type PortChecker struct {
	remote system.RemoteRunner
}

// NewPortChecker creates a new PortChecker
func NewPortChecker(remote system.RemoteRunner) *PortChecker {
	return &PortChecker{remote: remote}
}

// Check asks ss for listening sockets on port. docker ps is used to name the
// owner of a bound port, and as the probe itself when ss is missing.
func (p *PortChecker) Check(ctx context.Context, port int) (PortCheck, error) {
	check := PortCheck{Port: port}

	ss, err := p.remote.Exec(ctx, system.RemoteCommand{
		Script: fmt.Sprintf("command -v ss >/dev/null 2>&1 || exit %d; ss -Hltn 'sport = :%d'", exitCommandNotFound, port),
	})
	if err != nil {
		return check, remoteError(err)
	}
	ssAvailable := ss.Success()
	if ssAvailable {
		check.Probed = true
		check.Bound = strings.TrimSpace(ss.Stdout) != ""
		if !check.Bound {
			return check, nil
		}
	}

	owner, dockerAvailable, err := p.dockerOwner(ctx, port)
	if err != nil {
		return check, err
	}
	if dockerAvailable {
		check.Owner = owner
		if !ssAvailable {
			check.Probed = true
			check.Bound = owner != nil
		}
	}
	return check, nil
}

func (p *PortChecker) dockerOwner(ctx context.Context, port int) (*system.ContainerInfo, bool, error) {
	result, err := p.remote.Exec(ctx, system.RemoteCommand{Script: "docker ps --format json"})
	if err != nil {
		return nil, false, remoteError(err)
	}
	if !result.Success() {
		return nil, false, nil
	}

	owner, err := system.FindPortOwner(result.Stdout, port)
	if err != nil {
		return nil, false, err
	}
	return owner, true, nil
}
