// Package transport fetches raw status snapshots from remote VPN servers
// over SSH. One short-lived connection and session per poll keeps the poll
// loop free of stale-connection state.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultConnectTimeout = 10 * time.Second

// Runner executes a single status command on a remote server and returns
// its stdout.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

type SSHConfig struct {
	// Address is the host:port SSH endpoint of the server.
	Address string
	User    string

	// PrivateKeyPEM takes precedence over Password when both are set.
	PrivateKeyPEM []byte
	Password      string

	// KnownHostsPath enables host key verification; when empty, host keys
	// are not checked. That is acceptable only for lab deployments.
	KnownHostsPath string

	ConnectTimeout time.Duration
}

type SSHRunner struct {
	addr      string
	timeout   time.Duration
	clientCfg *ssh.ClientConfig
}

var _ Runner = (*SSHRunner)(nil)

func NewSSHRunner(cfg SSHConfig) (*SSHRunner, error) {
	if cfg.Address == "" {
		return nil, errors.New("ssh address is required")
	}
	if cfg.User == "" {
		return nil, errors.New("ssh user is required")
	}

	var auth []ssh.AuthMethod
	if len(cfg.PrivateKeyPEM) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse ssh private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh credentials are required: private key or password")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() // #nosec G106 -- overridden below when known_hosts is configured.
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	return &SSHRunner{
		addr:    cfg.Address,
		timeout: timeout,
		clientCfg: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auth,
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
	}, nil
}

// Run dials the server, executes command in one session and returns stdout.
// The context deadline bounds the whole exchange via a connection deadline.
func (r *SSHRunner) Run(ctx context.Context, command string) (string, error) {
	dialer := net.Dialer{Timeout: r.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", r.addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return "", fmt.Errorf("set connection deadline: %w", err)
		}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, r.addr, r.clientCfg)
	if err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", r.addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close() //nolint:errcheck

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close() //nolint:errcheck

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(command); err != nil {
		return "", fmt.Errorf("run %q: %w (stderr: %s)", command, err, bytes.TrimSpace(stderr.Bytes()))
	}

	return stdout.String(), nil
}

// LoadPrivateKey reads PEM key material from path for SSHConfig.
func LoadPrivateKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path is provided by operator config.
	if err != nil {
		return nil, fmt.Errorf("read ssh private key file: %w", err)
	}
	return raw, nil
}
