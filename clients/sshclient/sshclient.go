// Package sshclient runs commands on a remote host over a persistent SSH connection.
package sshclient

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHClient manages a persistent SSH connection for running multiple commands.
type SSHClient struct {
	client *ssh.Client
}

// Option configures the connection.
type Option func(*ssh.ClientConfig) error

// WithKnownHosts verifies the remote host key against an OpenSSH known_hosts file.
// Without it any host key is accepted.
func WithKnownHosts(path string) Option {
	return func(cfg *ssh.ClientConfig) error {
		cb, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("loading known hosts: %w", err)
		}
		cfg.HostKeyCallback = cb
		return nil
	}
}

// New creates a new SSHClient connected to the given host with the provided user and private key (PEM format).
func New(host, user, privateKeyPEM string, opts ...Option) (*SSHClient, error) {
	signer, err := ssh.ParsePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	config := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	client, err := ssh.Dial("tcp", host, config)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}

	return &SSHClient{client: client}, nil
}

// NewFromKeyFile is New with the private key read from a file.
func NewFromKeyFile(host, user, keyFile string, opts ...Option) (*SSHClient, error) {
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return New(host, user, string(key), opts...)
}

// Run executes name with args on the remote host and returns its stdout. The session is
// closed early if ctx is cancelled.
func (c *SSHClient) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	if err := session.Run(shellJoin(name, args)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to run command: %w: %s", err, strings.TrimSpace(stderrBuf.String()))
	}

	return stdoutBuf.Bytes(), nil
}

// Close closes the underlying SSH connection.
func (c *SSHClient) Close() error {
	return c.client.Close()
}

// shellJoin quotes every word for a POSIX shell.
func shellJoin(name string, args []string) string {
	words := make([]string, 0, len(args)+1)
	words = append(words, quote(name))
	for _, a := range args {
		words = append(words, quote(a))
	}
	return strings.Join(words, " ")
}

func quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:,+@%", r):
		return false
	}
	return true
}
