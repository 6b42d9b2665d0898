package system

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsComposeFileName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"compose.yaml", true},
		{"compose.yml", true},
		{"docker-compose.yml", true},
		{"Docker-Compose.YAML", true},
		{"compose.override.yaml", true},
		{"docker-compose.prod.yml", true},
		{"compose.json", false},
		{"my-compose.yaml", false},
		{"compose.it's.yaml", false},
		{"README.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsComposeFileName(tt.name); got != tt.want {
				t.Errorf("IsComposeFileName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestOrderComposeFilesPutsBaseFirst(t *testing.T) {
	got := OrderComposeFiles([]string{"compose.override.yaml", "compose.prod.yaml", "compose.yaml"})
	assert.Equal(t, []string{"compose.yaml", "compose.override.yaml", "compose.prod.yaml"}, got)

	got = OrderComposeFiles([]string{"docker-compose.dev.yml", "compose.dev.yml"})
	assert.Equal(t, []string{"compose.dev.yml", "docker-compose.dev.yml"}, got)
}

func TestDiscoverComposeFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"docker-compose.yml", "docker-compose.override.yml", "Dockerfile", "main.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "compose.d.yaml"), 0o755))

	files, err := DiscoverComposeFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"docker-compose.yml", "docker-compose.override.yml"}, files)
}

func TestComposeCommand(t *testing.T) {
	assert.Equal(t, "docker compose -f 'compose.yaml' -f 'compose.prod.yaml'",
		ComposeCommand([]string{"compose.yaml", "compose.prod.yaml"}))
	assert.Equal(t, "docker compose", ComposeCommand(nil))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'/home/chris/repos'", ShellQuote("/home/chris/repos"))
	assert.Equal(t, `'it'\''s'`, ShellQuote("it's"))
}

func TestParseServiceStatuses(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []ServiceStatus
	}{
		{
			name: "newline delimited",
			output: `{"Name":"url-shortener-postgres-1","Service":"postgres","State":"running","Status":"Up 7 seconds"}
{"Name":"url-shortener-url_shortener-1","Service":"url_shortener","State":"running","Status":"Up 5 seconds"}
`,
			want: []ServiceStatus{
				{Name: "url-shortener-postgres-1", Service: "postgres", State: "running", Status: "Up 7 seconds"},
				{Name: "url-shortener-url_shortener-1", Service: "url_shortener", State: "running", Status: "Up 5 seconds"},
			},
		},
		{
			name:   "array",
			output: `[{"Name":"b","State":"exited","Status":"Exited (1) 2 seconds ago"},{"Name":"a","State":"running","Status":"Up 1 second"}]`,
			want: []ServiceStatus{
				{Name: "b", State: "exited", Status: "Exited (1) 2 seconds ago"},
				{Name: "a", State: "running", Status: "Up 1 second"},
			},
		},
		{
			name:   "name falls back to service",
			output: `{"Service":"web","State":"running","Status":"Up"}`,
			want:   []ServiceStatus{{Name: "web", Service: "web", State: "running", Status: "Up"}},
		},
		{
			name:   "empty",
			output: "\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServiceStatuses(tt.output)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseServiceStatusesInvalid(t *testing.T) {
	_, err := ParseServiceStatuses("{not json")
	assert.Error(t, err)
}

func TestServiceStatusRunning(t *testing.T) {
	assert.True(t, ServiceStatus{State: "running"}.Running())
	assert.False(t, ServiceStatus{State: "exited"}.Running())
}

func TestParseVolumeNames(t *testing.T) {
	out := `{"Driver":"local","Name":"url-shortener_pgdata"}
{"Driver":"local","Name":"url-shortener_cache"}
`
	names, err := ParseVolumeNames(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"url-shortener_pgdata", "url-shortener_cache"}, names)

	names, err = ParseVolumeNames("")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestContainerInfoPublishes(t *testing.T) {
	tests := []struct {
		name  string
		ports string
		port  int
		want  bool
	}{
		{"ipv4 and ipv6", "0.0.0.0:8228->8000/tcp, :::8228->8000/tcp", 8228, true},
		{"container side only", "0.0.0.0:9000->8228/tcp", 8228, false},
		{"unpublished", "8228/tcp", 8228, false},
		{"range", "0.0.0.0:8200-8300->8200-8300/tcp", 8228, true},
		{"outside range", "0.0.0.0:8200-8210->8200-8210/tcp", 8228, false},
		{"empty", "", 8228, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ContainerInfo{Ports: tt.ports}
			if got := c.Publishes(tt.port); got != tt.want {
				t.Errorf("Publishes(%d) with %q = %v, want %v", tt.port, tt.ports, got, tt.want)
			}
		})
	}
}

func TestFindPortOwner(t *testing.T) {
	out := `{"ID":"aaa","Names":"other-web-1","Ports":"0.0.0.0:3000->3000/tcp","Labels":""}
{"ID":"bbb","Names":"blog-web-1","Ports":"0.0.0.0:8228->80/tcp","Labels":"com.docker.compose.project=blog,com.docker.compose.project.working_dir=/home/chris/repos/blog"}
`
	owner, err := FindPortOwner(out, 8228)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "blog-web-1", owner.Names)
	assert.Equal(t, "/home/chris/repos/blog", owner.ComposeWorkingDir())

	owner, err = FindPortOwner(out, 9999)
	require.NoError(t, err)
	assert.Nil(t, owner)
}
