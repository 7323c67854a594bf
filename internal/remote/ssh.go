// ABOUTME: SSH implementation of the remote shell contract.
// ABOUTME: Dials with password or key auth and verifies the host key via known_hosts.

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultDialTimeout bounds the TCP dial and SSH handshake.
const DefaultDialTimeout = 15 * time.Second

// SSHConfig describes how to reach the remote host.
type SSHConfig struct {
	Addr                  string
	User                  string
	Password              string
	PrivateKeyPath        string
	PrivateKeyPassphrase  string
	KnownHostsPath        string
	InsecureIgnoreHostKey bool
	Timeout               time.Duration
}

// SSHShell is a Shell over a single SSH client connection.
type SSHShell struct {
	addr    string
	timeout time.Duration
	config  *ssh.ClientConfig
	logger  *slog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHShell validates cfg and prepares the client configuration.
// No connection is made until Connect.
func NewSSHShell(cfg SSHConfig, logger *slog.Logger) (*SSHShell, error) {
	if cfg.Addr == "" {
		return nil, errors.New("ssh address is required")
	}
	if cfg.User == "" {
		return nil, errors.New("ssh user is required")
	}

	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	addr := cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	return &SSHShell{
		addr:    addr,
		timeout: timeout,
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         timeout,
		},
		logger: logger.With("component", "ssh", "addr", addr),
	}, nil
}

func authMethods(cfg SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.PrivateKeyPath != "" {
		pem, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		var signer ssh.Signer
		if cfg.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}

	if len(methods) == 0 {
		return nil, errors.New("ssh requires a password or private key")
	}
	return methods, nil
}

func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts %s: %w", path, err)
	}
	return cb, nil
}

// Connect dials the host if not already connected.
func (s *SSHShell) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", s.addr, err)
	}

	// The handshake does not observe ctx; bound it with a deadline instead.
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr, s.config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", s.addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	s.client = ssh.NewClient(c, chans, reqs)
	s.logger.Debug("connected")
	return nil
}

// Disconnect closes the connection. It is a no-op when not connected.
func (s *SSHShell) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.logger.Debug("disconnected")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing ssh connection: %w", err)
	}
	return nil
}

// IsConnected reports whether a client connection is open.
func (s *SSHShell) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Execute runs command in a new session. Cancelling ctx closes the session.
func (s *SSHShell) Execute(ctx context.Context, command string) (CommandResult, error) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return CommandResult{}, ErrNotConnected
	}

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	runErr := session.Run(command)
	if ctx.Err() != nil {
		return CommandResult{}, ctx.Err()
	}

	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr != nil {
		var exitErr *ssh.ExitError
		if !errors.As(runErr, &exitErr) {
			return result, fmt.Errorf("running remote command: %w", runErr)
		}
		result.ExitStatus = exitErr.ExitStatus()
	}
	s.logger.Debug("command executed", "command", command, "exit_status", result.ExitStatus)
	return result, nil
}
