package steps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/common"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/config"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/system"
	"github.com/zoro11031/homelab-coreos-minipc/deploy/internal/ui"
)

const envHeader = "# Choose the contents of the remote .env file."

// EnvProvisioner writes a new .env into the remote project folder from
// content the operator edits. The content is collected before anything is
// changed remotely and written once the folder exists.
type EnvProvisioner struct {
	cfg    *config.Config
	remote system.RemoteRunner
	ui     Prompter
	logger *zap.Logger
	editor string
	dryRun bool
}

// NewEnvProvisioner creates a new EnvProvisioner. editor overrides
// $VISUAL/$EDITOR when not empty.
func NewEnvProvisioner(cfg *config.Config, remote system.RemoteRunner, ui Prompter, logger *zap.Logger, editor string, dryRun bool) *EnvProvisioner {
	return &EnvProvisioner{cfg: cfg, remote: remote, ui: ui, logger: logger, editor: editor, dryRun: dryRun}
}

// envTemplate builds the editor content: a header line, then the suggested
// body. It returns the header so it can be stripped afterwards.
func envTemplate(body string) (header, template string) {
	header = envHeader
	if strings.TrimSpace(body) != "" {
		header += " Here's a copy of the local .env file:"
	}
	return header, header + "\n\n" + body
}

// stripEnvHeader removes the header and surrounding blank space.
func stripEnvHeader(edited, header string) string {
	return strings.TrimSpace(strings.Replace(edited, header, "", 1))
}

// forwardedAllowIPs is the uvicorn setting for running behind a proxy.
func forwardedAllowIPs(ip string) string {
	return fmt.Sprintf("FORWARDED_ALLOW_IPS=%q", ip)
}

// Collect asks for the .env content. Empty content is ErrEnvNotProvided.
func (e *EnvProvisioner) Collect(dc *DeploymentContext) (string, error) {
	body, err := e.localEnv(dc.ProjectDir)
	if err != nil {
		return "", err
	}

	proxyLine, err := e.proxySetting(dc.ProjectDir)
	if err != nil {
		return "", err
	}
	if proxyLine != "" {
		body = strings.TrimLeft(body+"\n\n"+proxyLine, "\n")
	}

	header, template := envTemplate(body)
	e.ui.Info("Waiting for you to choose the contents of the remote .env file")
	edited, err := e.ui.PromptEditor("Remote .env file", ui.EditorOptions{
		Template: template,
		Command:  e.editor,
		FileName: "*.env",
	})
	if err != nil {
		return "", fmt.Errorf("failed to edit .env: %w", err)
	}

	content := stripEnvHeader(edited, header)
	if content == "" {
		return "", ErrEnvNotProvided
	}
	return content, nil
}

// Write stores content as the remote .env with mode 0600.
func (e *EnvProvisioner) Write(ctx context.Context, dc *DeploymentContext, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEnvNotProvided
	}

	e.ui.Info("Creating a .env file in the remote project folder")
	if e.dryRun {
		e.ui.Info("[dry run] skipped writing .env")
		return nil
	}

	result, err := e.remote.Exec(ctx, system.RemoteCommand{
		Script: dc.inProjectDir("umask 077 && cat > " + envFileName),
		Stdin:  []byte(content + "\n"),
	})
	if err != nil {
		return remoteError(err)
	}
	if !result.Success() {
		return commandError("writing .env", result)
	}

	e.logger.Info("provisioned .env", zap.String("project", dc.ProjectName), zap.Int("bytes", len(content)+1))
	return nil
}

func (e *EnvProvisioner) localEnv(projectDir string) (string, error) {
	content, err := os.ReadFile(filepath.Join(projectDir, envFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read local .env: %w", err)
	}
	return strings.TrimRight(string(content), " \t\r\n"), nil
}

// proxySetting asks about a reverse proxy for FastAPI projects and returns
// the line to add, if any.
func (e *EnvProvisioner) proxySetting(projectDir string) (string, error) {
	fastapi, err := system.UsesFastAPI(projectDir)
	if err != nil {
		e.ui.Warningf("Could not read pyproject.toml: %v", err)
		return "", nil
	}
	if !fastapi {
		return "", nil
	}

	useProxy, err := e.ui.PromptYesNo("Will the deployed service use a proxy?", true)
	if err != nil || !useProxy {
		return "", err
	}

	saved := e.cfg.GetOrDefault(config.KeyProxyIPAddress, "")
	ip, err := e.ui.PromptInput("Proxy IP address", saved, func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return common.ValidateIP(s)
	})
	if err != nil {
		return "", err
	}

	ip = strings.TrimSpace(ip)
	if ip == "" {
		e.ui.Info("Canceled proxy")
		return "", nil
	}
	if err := e.cfg.Set(config.KeyProxyIPAddress, ip); err != nil {
		return "", fmt.Errorf("failed to save proxy IP address: %w", err)
	}
	return forwardedAllowIPs(ip), nil
}
