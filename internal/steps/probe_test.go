package steps

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
)

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want RemoteProjectState
	}{
		{name: "absent", out: "", want: RemoteProjectState{}},
		{
			name: "folder only",
			out:  "project folder exists\n",
			want: RemoteProjectState{Present: true},
		},
		{
			name: "clean clone with env",
			out:  "project folder exists\n.git folder exists\nGit is clean\n.env file exists\n",
			want: RemoteProjectState{Present: true, HasGitDir: true, GitClean: true, HasEnvFile: true},
		},
		{
			name: "dirty clone",
			out:  "project folder exists\n.git folder exists\n",
			want: RemoteProjectState{Present: true, HasGitDir: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseProbeOutput(tt.out); got != tt.want {
				t.Errorf("parseProbeOutput() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProbeScriptQuotesDirectory(t *testing.T) {
	script := probeScript("/home/chris/repos/url-shortener")
	assert.True(t, strings.HasPrefix(script, "dir='/home/chris/repos/url-shortener'\n"))
	for _, line := range []string{probeFolderExists, probeGitExists, probeGitClean, probeEnvExists} {
		assert.Contains(t, script, "echo '"+line+"'")
	}
}

func TestProbe(t *testing.T) {
	psRunning := `{"Name":"url-shortener-postgres-1","Service":"postgres","State":"running","Status":"Up 2 hours"}` + "\n"

	tests := []struct {
		name      string
		probe     *system.Result
		ps        *system.Result
		want      RemoteProjectState
		wantPsRan bool
	}{
		{
			name:  "absent",
			probe: &system.Result{},
			want:  RemoteProjectState{},
		},
		{
			name:      "present and running",
			probe:     &system.Result{Stdout: "project folder exists\n.env file exists\n"},
			ps:        &system.Result{Stdout: psRunning},
			want:      RemoteProjectState{Present: true, Running: true, HasEnvFile: true},
			wantPsRan: true,
		},
		{
			name:      "present with only stopped services",
			probe:     &system.Result{Stdout: "project folder exists\n"},
			ps:        &system.Result{Stdout: `{"Name":"url-shortener-postgres-1","Service":"postgres","State":"exited","Status":"Exited (1) 2 minutes ago"}` + "\n"},
			want:      RemoteProjectState{Present: true},
			wantPsRan: true,
		},
		{
			name:      "present without compose files",
			probe:     &system.Result{Stdout: "project folder exists\n"},
			ps:        &system.Result{ExitCode: 1, Stderr: "no configuration file provided: not found"},
			want:      RemoteProjectState{Present: true},
			wantPsRan: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			remote.on("ps --format json", tt.ps, nil).on("dir=", tt.probe, nil)
			probe := NewRemoteStateProbe(remote, newScriptedPrompter(&bytes.Buffer{}), zap.NewNop())

			got, err := probe.Probe(context.Background(), testContext())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantPsRan, remote.ran("ps --format json"))
		})
	}
}

func TestProbeUnreachable(t *testing.T) {
	remote := newFakeRemote().on("dir=", nil, fmt.Errorf("dial tcp: %w", system.ErrConnection))
	probe := NewRemoteStateProbe(remote, newScriptedPrompter(&bytes.Buffer{}), zap.NewNop())

	_, err := probe.Probe(context.Background(), testContext())
	assert.ErrorIs(t, err, ErrRemoteUnreachable)
}

func TestPortChecker(t *testing.T) {
	owner := `{"ID":"1","Names":"web","Ports":"0.0.0.0:8228->80/tcp","Labels":""}`
	notFound := &system.Result{ExitCode: exitCommandNotFound}

	tests := []struct {
		name       string
		ss         *system.Result
		docker     *system.Result
		wantProbed bool
		wantBound  bool
		wantOwner  string
		wantDocker bool
	}{
		{
			name:       "free according to ss",
			ss:         &system.Result{},
			wantProbed: true,
		},
		{
			name:       "bound according to ss, owner from docker",
			ss:         &system.Result{Stdout: "LISTEN 0 4096 *:8228 *:*\n"},
			docker:     &system.Result{Stdout: owner + "\n"},
			wantProbed: true,
			wantBound:  true,
			wantOwner:  "web",
			wantDocker: true,
		},
		{
			name:       "bound by a process docker does not know",
			ss:         &system.Result{Stdout: "LISTEN 0 4096 *:8228 *:*\n"},
			docker:     notFound,
			wantProbed: true,
			wantBound:  true,
			wantDocker: true,
		},
		{
			name:       "no ss, docker publishes",
			ss:         notFound,
			docker:     &system.Result{Stdout: "[" + owner + "]"},
			wantProbed: true,
			wantBound:  true,
			wantOwner:  "web",
			wantDocker: true,
		},
		{
			name:       "no ss, docker free",
			ss:         notFound,
			docker:     &system.Result{},
			wantProbed: true,
			wantDocker: true,
		},
		{
			name:       "neither available",
			ss:         notFound,
			docker:     notFound,
			wantDocker: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote().on("ss -Hltn", tt.ss, nil).on("docker ps", tt.docker, nil)

			check, err := NewPortChecker(remote).Check(context.Background(), 8228)
			require.NoError(t, err)

			assert.Equal(t, tt.wantProbed, check.Probed)
			assert.Equal(t, tt.wantBound, check.Bound)
			if tt.wantOwner == "" {
				assert.Nil(t, check.Owner)
			} else {
				require.NotNil(t, check.Owner)
				assert.Equal(t, tt.wantOwner, check.Owner.Names)
			}
			assert.Equal(t, tt.wantDocker, remote.ran("docker ps"))
		})
	}
}
