package system

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsesFastAPI(t *testing.T) {
	tests := []struct {
		name      string
		pyproject string
		want      bool
		wantErr   bool
	}{
		{
			name: "pep 621",
			pyproject: `[project]
name = "url-shortener"
dependencies = ["fastapi[standard]>=0.115", "sqlalchemy"]
`,
			want: true,
		},
		{
			name: "optional dependency",
			pyproject: `[project]
name = "svc"
dependencies = []
[project.optional-dependencies]
web = ["FastAPI==0.110.0"]
`,
			want: true,
		},
		{
			name: "poetry",
			pyproject: `[tool.poetry.dependencies]
python = "^3.12"
fastapi = "^0.115"
`,
			want: true,
		},
		{
			name: "similar name",
			pyproject: `[project]
dependencies = ["fastapi-users", "flask"]
`,
			want: false,
		},
		{
			name:      "invalid",
			pyproject: "[project\n",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(tt.pyproject), 0o644))

			got, err := UsesFastAPI(dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UsesFastAPI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("UsesFastAPI() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUsesFastAPIWithoutPyproject(t *testing.T) {
	got, err := UsesFastAPI(t.TempDir())
	require.NoError(t, err)
	assert.False(t, got)
}

func TestParseComposeFile(t *testing.T) {
	content := []byte(`services:
  url_shortener:
    build: .
    ports:
      - "${PORT:-8228}:8000"
  postgres:
    image: postgres:16
`)
	summary, err := ParseComposeFile("compose.yaml", content)
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres", "url_shortener"}, summary.Services)
	assert.True(t, summary.UsesPort)

	summary, err = ParseComposeFile("compose.override.yaml", []byte("volumes:\n  data: {}\n"))
	require.NoError(t, err)
	assert.Empty(t, summary.Services)
	assert.False(t, summary.UsesPort)

	_, err = ParseComposeFile("compose.yaml", []byte(""))
	assert.Error(t, err)

	_, err = ParseComposeFile("compose.yaml", []byte("services: [a, b"))
	assert.Error(t, err)

	_, err = ParseComposeFile("compose.yaml", []byte("services:\n  - web\n"))
	assert.Error(t, err)
}
