package steps

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/config"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/ui"
)

const envWriteScript = "cd '/home/chris/repos/url-shortener' && umask 077 && cat > .env"

func TestEnvTemplate(t *testing.T) {
	header, template := envTemplate("")
	assert.Equal(t, envHeader, header)
	assert.Equal(t, envHeader+"\n\n", template)

	header, template = envTemplate("DEBUG=false")
	assert.Equal(t, envHeader+" Here's a copy of the local .env file:", header)
	assert.Equal(t, header+"\n\nDEBUG=false", template)

	assert.Equal(t, "DEBUG=false", stripEnvHeader(template, header))
	assert.Equal(t, `FORWARDED_ALLOW_IPS="10.0.0.2"`, forwardedAllowIPs("10.0.0.2"))
}

// collectAndWrite runs both halves the way a deployment does.
func collectAndWrite(env *EnvProvisioner, dc *DeploymentContext) error {
	content, err := env.Collect(dc)
	if err != nil {
		return err
	}
	return env.Write(context.Background(), dc, content)
}

func TestProvisionCopiesLocalEnv(t *testing.T) {
	dc := testContext()
	dc.ProjectDir = writeProject(t, "url-shortener", map[string]string{
		".env": "POSTGRES_PASSWORD=local\nBASE_URL=http://localhost:8228\n\n",
	})
	remote := newFakeRemote()
	prompter := newScriptedPrompter(&bytes.Buffer{})

	var seen ui.EditorOptions
	prompter.editor = func(opts ui.EditorOptions) (string, error) {
		seen = opts
		return strings.Replace(opts.Template, "=local", "=s3cret", 1), nil
	}

	env := NewEnvProvisioner(testConfig(t), remote, prompter, zap.NewNop(), "nano", false)
	require.NoError(t, collectAndWrite(env, dc))

	assert.Equal(t, "*.env", seen.FileName)
	assert.Equal(t, "nano", seen.Command)
	assert.True(t, strings.HasPrefix(seen.Template, envHeader+" Here's a copy of the local .env file:\n\n"))
	assert.Equal(t, "POSTGRES_PASSWORD=s3cret\nBASE_URL=http://localhost:8228\n", remote.stdin[envWriteScript])
}

func TestProvisionRejectsEmptyContent(t *testing.T) {
	dc := testContext()
	dc.ProjectDir = writeProject(t, "url-shortener", nil)
	remote := newFakeRemote()
	prompter := newScriptedPrompter(&bytes.Buffer{})

	env := NewEnvProvisioner(testConfig(t), remote, prompter, zap.NewNop(), "", false)
	err := collectAndWrite(env, dc)

	assert.ErrorIs(t, err, ErrEnvNotProvided)
	assert.Empty(t, remote.scripts)

	assert.ErrorIs(t, env.Write(context.Background(), dc, " \n"), ErrEnvNotProvided)
	assert.Empty(t, remote.scripts)
}

func TestCollectDoesNotTouchRemote(t *testing.T) {
	dc := testContext()
	dc.ProjectDir = writeProject(t, "url-shortener", map[string]string{".env": "DEBUG=false\n"})
	remote := newFakeRemote()

	env := NewEnvProvisioner(testConfig(t), remote, newScriptedPrompter(&bytes.Buffer{}), zap.NewNop(), "", false)
	content, err := env.Collect(dc)

	require.NoError(t, err)
	assert.Equal(t, "DEBUG=false", content)
	assert.Empty(t, remote.scripts)
}

func TestProvisionAddsProxyForFastAPI(t *testing.T) {
	dc := testContext()
	dc.ProjectDir = writeProject(t, "url-shortener", map[string]string{
		"pyproject.toml": "[project]\nname = \"url-shortener\"\ndependencies = [\"fastapi>=0.115\"]\n",
	})
	cfg := testConfig(t)
	remote := newFakeRemote()
	prompter := newScriptedPrompter(&bytes.Buffer{})
	prompter.inputs["Proxy IP address"] = []string{"10.0.0.2"}

	env := NewEnvProvisioner(cfg, remote, prompter, zap.NewNop(), "", false)
	require.NoError(t, collectAndWrite(env, dc))

	assert.Equal(t, 1, prompter.count("Will the deployed service use a proxy?"))
	assert.Equal(t, "FORWARDED_ALLOW_IPS=\"10.0.0.2\"\n", remote.stdin[envWriteScript])

	saved, err := cfg.Get(config.KeyProxyIPAddress)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", saved)
}

func TestProvisionWithoutProxy(t *testing.T) {
	dc := testContext()
	dc.ProjectDir = writeProject(t, "url-shortener", map[string]string{
		".env":           "DEBUG=false\n",
		"pyproject.toml": "[tool.poetry.dependencies]\nfastapi = \"^0.115\"\n",
	})
	remote := newFakeRemote()
	prompter := newScriptedPrompter(&bytes.Buffer{})
	prompter.confirm["Will the deployed service use a proxy?"] = []bool{false}

	env := NewEnvProvisioner(testConfig(t), remote, prompter, zap.NewNop(), "", false)
	require.NoError(t, collectAndWrite(env, dc))

	assert.Zero(t, prompter.count("Proxy IP address"))
	assert.Equal(t, "DEBUG=false\n", remote.stdin[envWriteScript])
}

func TestProvisionFailures(t *testing.T) {
	dc := testContext()
	dc.ProjectDir = writeProject(t, "url-shortener", map[string]string{".env": "A=1\n"})

	remote := newFakeRemote().on("cat > .env", &system.Result{ExitCode: 1, Stderr: "No such file or directory"}, nil)
	env := NewEnvProvisioner(testConfig(t), remote, newScriptedPrompter(&bytes.Buffer{}), zap.NewNop(), "", false)
	err := collectAndWrite(env, dc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No such file or directory")

	dry := newFakeRemote()
	env = NewEnvProvisioner(testConfig(t), dry, newScriptedPrompter(&bytes.Buffer{}), zap.NewNop(), "", true)
	require.NoError(t, collectAndWrite(env, dc))
	assert.Empty(t, dry.scripts)
}
