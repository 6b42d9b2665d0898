package steps

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

const (
	// DefaultPollInterval is the time between two status queries.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxFailures is how many consecutive failed queries end monitoring.
	DefaultMaxFailures = 3

	statusSeparator = "\t------------------------------"
)

// MonitorState is the state of a StatusMonitor.
type MonitorState int

const (
	MonitorPolling MonitorState = iota
	MonitorCancelled
	MonitorUnreachable
)

func (s MonitorState) String() string {
	switch s {
	case MonitorPolling:
		return "polling"
	case MonitorCancelled:
		return "cancelled"
	case MonitorUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("MonitorState(%d)", int(s))
	}
}

// StatusMonitor polls the project's services and renders each snapshot
// until the context is cancelled or the remote host stops answering.
type StatusMonitor struct {
	remote system.RemoteRunner
	ui     Prompter
	logger *zap.Logger
	out    io.Writer

	Interval    time.Duration
	MaxFailures int

	state MonitorState
}

// NewStatusMonitor creates a new StatusMonitor writing snapshots to out.
func NewStatusMonitor(remote system.RemoteRunner, ui Prompter, logger *zap.Logger, out io.Writer) *StatusMonitor {
	return &StatusMonitor{
		remote:      remote,
		ui:          ui,
		logger:      logger,
		out:         out,
		Interval:    DefaultPollInterval,
		MaxFailures: DefaultMaxFailures,
	}
}

// State returns the current state.
func (m *StatusMonitor) State() MonitorState {
	return m.state
}

// Snapshot queries the service statuses once, in the order compose reports.
// Stopped and exited containers are included so a crashed service shows up.
func (m *StatusMonitor) Snapshot(ctx context.Context, dc *DeploymentContext) ([]system.ServiceStatus, error) {
	result, err := m.remote.Exec(ctx, system.RemoteCommand{
		Script: dc.inProjectDir(dc.ComposeCommand() + " ps -a --format json"),
	})
	if err != nil {
		return nil, remoteError(err)
	}
	if !result.Success() {
		return nil, commandError("docker compose ps", result)
	}
	return system.ParseServiceStatuses(result.Stdout)
}

// RenderSnapshot writes one separator line followed by a line per service.
func RenderSnapshot(w io.Writer, statuses []system.ServiceStatus) {
	fmt.Fprintln(w, statusSeparator)
	if len(statuses) == 0 {
		fmt.Fprintln(w, "\tno services are running")
		return
	}
	for _, s := range statuses {
		fmt.Fprintf(w, "\t%s: %s\n", s.Name, s.Status)
	}
}

// Run polls until ctx is cancelled, which returns nil, or until MaxFailures
// consecutive queries fail, which returns ErrRemoteUnreachable.
func (m *StatusMonitor) Run(ctx context.Context, dc *DeploymentContext) error {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxFailures := m.MaxFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}

	m.state = MonitorPolling
	m.ui.Infof("Monitoring the services every %s, press Ctrl+C to stop", interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	failures := 0
	for {
		if ctx.Err() != nil {
			return m.cancelled(dc)
		}

		select {
		case <-ctx.Done():
			return m.cancelled(dc)
		case <-timer.C:
		}

		statuses, err := m.Snapshot(ctx, dc)
		if err != nil {
			if ctx.Err() != nil {
				return m.cancelled(dc)
			}
			failures++
			m.ui.Warningf("Could not get the service status (%d/%d): %v", failures, maxFailures, err)
			m.logger.Warn("status query failed",
				zap.String("project", dc.ProjectName),
				zap.Int("failures", failures),
				zap.Error(err))
			if failures >= maxFailures {
				m.state = MonitorUnreachable
				return fmt.Errorf("%w: %d consecutive status queries failed", ErrRemoteUnreachable, failures)
			}
		} else {
			failures = 0
			RenderSnapshot(m.out, statuses)
		}

		timer.Reset(interval)
	}
}

func (m *StatusMonitor) cancelled(dc *DeploymentContext) error {
	m.state = MonitorCancelled
	m.logger.Info("monitoring stopped", zap.String("project", dc.ProjectName))
	return nil
}
