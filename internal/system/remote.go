package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrConnection marks failures to reach the remote host or to get an answer
// from it in time. Callers map it to their own "unreachable" error.
var ErrConnection = errors.New("remote connection failed")

// RemoteCommand is a shell script executed in one SSH session.
type RemoteCommand struct {
	Script string
	// Stdin is streamed to the remote command when non-nil.
	Stdin []byte
	// Timeout overrides the client's default command timeout.
	Timeout time.Duration
}

// RemoteRunner executes shell scripts on the remote host.
type RemoteRunner interface {
	Exec(ctx context.Context, cmd RemoteCommand) (*Result, error)
	Close() error
}

// SSHClientConfig configures the SSH client.
type SSHClientConfig struct {
	CommandTimeout time.Duration // Default: 30 seconds
	ConnectTimeout time.Duration // Default: 10 seconds
	KnownHostsPath string        // Default: ~/.ssh/known_hosts
}

// DefaultSSHClientConfig returns the default configuration.
func DefaultSSHClientConfig() SSHClientConfig {
	return SSHClientConfig{
		CommandTimeout: 30 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// SSHClient implements RemoteRunner over golang.org/x/crypto/ssh.
// The connection is opened lazily on the first command.
type SSHClient struct {
	host      *HostConfig
	config    SSHClientConfig
	sshClient *ssh.Client
	mu        sync.Mutex // Protects sshClient
}

// NewSSHClient creates a client for the resolved host. No connection is made
// until Exec is called.
func NewSSHClient(host *HostConfig, config SSHClientConfig) *SSHClient {
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 30 * time.Second
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &SSHClient{host: host, config: config}
}

// connect establishes the SSH connection if not already connected.
func (c *SSHClient) connect(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sshClient != nil {
		return c.sshClient, nil
	}

	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            c.host.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.config.ConnectTimeout,
	}

	addr := net.JoinHostPort(c.host.HostName, strconv.Itoa(c.host.Port))
	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnection, addr, err)
	}

	sshConn, chans, reqs, err := handshake(ctx, conn, addr, config, c.config.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	c.sshClient = ssh.NewClient(sshConn, chans, reqs)
	return c.sshClient, nil
}

// handshake runs the SSH handshake on conn, bounded by timeout and ctx.
// ssh.ClientConfig.Timeout only covers ssh.Dial.
func handshake(ctx context.Context, conn net.Conn, addr string, config *ssh.ClientConfig, timeout time.Duration) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	cancelled := !stop()
	if err != nil {
		conn.Close()
		if cancelled {
			return nil, nil, nil, fmt.Errorf("SSH handshake with %s: %w", addr, ctx.Err())
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			return nil, nil, nil, fmt.Errorf("host key verification failed for %s: %w", addr, err)
		}
		return nil, nil, nil, fmt.Errorf("%w: SSH handshake with %s: %w (did you add the host's key to ssh-agent?)", ErrConnection, addr, err)
	}
	if cancelled {
		sshConn.Close()
		return nil, nil, nil, fmt.Errorf("SSH handshake with %s: %w", addr, ctx.Err())
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		sshConn.Close()
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return sshConn, chans, reqs, nil
}

// authMethods collects the identity file and any keys held by ssh-agent.
func (c *SSHClient) authMethods() ([]ssh.AuthMethod, error) {
	var signers []ssh.Signer

	if c.host.IdentityFile != "" {
		key, err := os.ReadFile(c.host.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			var passErr *ssh.PassphraseMissingError
			if !errors.As(err, &passErr) {
				return nil, fmt.Errorf("parse SSH private key: %w", err)
			}
			// Encrypted keys are expected to be loaded into ssh-agent.
		} else {
			signers = append(signers, signer)
		}
	}

	methods := []ssh.AuthMethod{}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no usable SSH key for %s: set IdentityFile or load a key into ssh-agent", c.host.Alias)
	}
	return methods, nil
}

func (c *SSHClient) hostKeyCallback() (ssh.HostKeyCallback, error) {
	path := c.config.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts from %s: %w", path, err)
	}
	return callback, nil
}

// execOutcome is what the session goroutine reports back to Exec.
type execOutcome struct {
	result *Result
	err    error
}

// Exec runs one script in a new session and waits for it, bounded by the
// command timeout. A non-zero exit status is returned in Result.ExitCode.
// Opening the session counts against the timeout too; a connection that
// stops answering is dropped so the next command redials.
func (c *SSHClient) Exec(ctx context.Context, cmd RemoteCommand) (*Result, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = c.config.CommandTimeout
	}

	done := make(chan execOutcome, 1)
	go func() {
		done <- runSession(client, cmd)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.dropClient(client)
		return nil, ctx.Err()
	case <-timer.C:
		c.dropClient(client)
		return nil, fmt.Errorf("%w: command timeout after %v", ErrConnection, timeout)
	case out := <-done:
		if out.err != nil {
			c.dropClient(client)
			return nil, out.err
		}
		return out.result, nil
	}
}

// runSession opens a session on client and runs cmd in it.
func runSession(client *ssh.Client, cmd RemoteCommand) execOutcome {
	session, err := client.NewSession()
	if err != nil {
		return execOutcome{err: fmt.Errorf("%w: create SSH session: %w", ErrConnection, err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != nil {
		session.Stdin = bytes.NewReader(cmd.Stdin)
	}

	err = session.Run(cmd.Script)
	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return execOutcome{result: result}
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()
		return execOutcome{result: result}
	}
	return execOutcome{err: fmt.Errorf("%w: %w", ErrConnection, err)}
}

// dropClient discards a broken connection so the next command redials.
// It is a no-op when client has already been replaced.
func (c *SSHClient) dropClient(client *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sshClient == client {
		c.sshClient = nil
	}
	client.Close()
}

// Close closes the SSH connection.
func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sshClient != nil {
		err := c.sshClient.Close()
		c.sshClient = nil
		return err
	}
	return nil
}
