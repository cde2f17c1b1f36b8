package ssh

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Sentinel errors callers classify with errors.Is.
var (
	// ErrMissingCredential means neither a password nor a key file was
	// supplied. No network attempt is made in that case.
	ErrMissingCredential = errors.New("no credential: either a password or a key file is required")

	// ErrAmbiguousCredential means both a password and a key file were
	// supplied; exactly one is required.
	ErrAmbiguousCredential = errors.New("ambiguous credential: supply either a password or a key file, not both")

	// ErrAuth means the remote host rejected the supplied credential.
	ErrAuth = errors.New("authentication rejected")
)

// Credential holds exactly one way to authenticate against a remote host.
type Credential struct {
	Password      string
	KeyPath       string
	KeyPassphrase string
}

// Validate checks that exactly one credential source is set.
func (c Credential) Validate() error {
	hasPassword := strings.TrimSpace(c.Password) != ""
	hasKey := strings.TrimSpace(c.KeyPath) != ""

	switch {
	case !hasPassword && !hasKey:
		return ErrMissingCredential
	case hasPassword && hasKey:
		return ErrAmbiguousCredential
	}
	return nil
}

// ClientConfig holds SSH connection configuration
type ClientConfig struct {
	Host            string
	Port            int
	Username        string
	Credential      Credential
	Timeout         time.Duration
	KnownHostsPath  string
	TrustOnFirstUse bool
	HostKeyLogger   HostKeyLogger
}

// Client wraps an authenticated SSH connection to one host.
type Client struct {
	config      *ClientConfig
	client      *ssh.Client
	connectedAt time.Time
}

// Dial validates the credential and establishes the SSH connection.
// A missing or ambiguous credential fails before any network attempt.
func Dial(config *ClientConfig) (*Client, error) {
	if err := config.Credential.Validate(); err != nil {
		return nil, err
	}

	if config.Port == 0 {
		config.Port = 22
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	authMethod, err := buildAuthMethod(config.Credential)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := NewHostKeyCallback(config.KnownHostsPath, config.TrustOnFirstUse, config.HostKeyLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.Username,
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.Timeout,
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	client, err := ssh.Dial("tcp", address, sshConfig)
	if err != nil {
		if isAuthFailure(err) {
			return nil, fmt.Errorf("%w for %s@%s: %v", ErrAuth, config.Username, address, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}

	return &Client{
		config:      config,
		client:      client,
		connectedAt: time.Now(),
	}, nil
}

// buildAuthMethod selects the auth method the same way Validate counts
// credential sources: a whitespace-only password is no password.
func buildAuthMethod(cred Credential) (ssh.AuthMethod, error) {
	if strings.TrimSpace(cred.Password) != "" {
		return ssh.Password(cred.Password), nil
	}

	signer, err := LoadSigner(cred.KeyPath, cred.KeyPassphrase)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// isAuthFailure distinguishes a rejected credential from a network failure.
// x/crypto/ssh does not expose a typed error for the handshake outcome.
func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Close closes the SSH connection
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Uptime returns how long the connection has been open.
func (c *Client) Uptime() time.Duration {
	return time.Since(c.connectedAt)
}

// NewSFTP creates a new SFTP client over the connection.
func (c *Client) NewSFTP(opts ...sftp.ClientOption) (*sftp.Client, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return sftp.NewClient(c.client, opts...)
}
