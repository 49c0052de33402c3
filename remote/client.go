// Package remote implements the remote execution host capability surface
// over SSH: command execution, code staging, port tunneling and raw in-channel
// dialing. Client is tunneled-only; wrap it with Direct for transports where
// dialing arbitrary remote ports is allowed.
package remote

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"zerodeploy"
	"zerodeploy/internal/config"
	"zerodeploy/internal/scripts"

	"github.com/melbahja/goph"
	"golang.org/x/crypto/ssh"
)

var (
	_ zerodeploy.Host            = (*Client)(nil)
	_ zerodeploy.Tunneler        = (*Client)(nil)
	_ zerodeploy.DirectConnector = (*DirectClient)(nil)
)

// Client is an authenticated SSH connection to one remote machine. A Client
// is owned by a single deployment and never shared.
type Client struct {
	client *goph.Client
	creds  *Credentials
}

// DirectClient is a Client whose transport may open raw sockets to arbitrary
// remote ports, so deployments on it bypass tunneling.
type DirectClient struct {
	*Client
}

// Direct declares the direct-connect capability for this connection.
func (c *Client) Direct() *DirectClient {
	return &DirectClient{c}
}

func authMethods(creds *Credentials) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if creds.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(creds.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToCreateAuth, err)
		}

		signer, err := parseKey(keyBytes, creds.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToCreateAuth, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else if len(creds.PrivateKeyData) > 0 {
		signer, err := parseKey(creds.PrivateKeyData, creds.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToCreateAuth, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else if creds.Password != "" {
		methods = append(methods, ssh.Password(creds.Password))
	} else {
		return nil, ErrNoAuthMethodProvided
	}

	return methods, nil
}

func parseKey(keyBytes []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(keyBytes)
}

// Connect dials the remote machine, authenticates and verifies the session
// is usable by running a test command.
func Connect(creds *Credentials) (*Client, error) {
	methods, err := authMethods(creds)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	hostPort := net.JoinHostPort(creds.Host, fmt.Sprintf("%d", creds.Port))

	conn, err := net.DialTimeout("tcp", hostPort, sshConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateSSHClient, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, hostPort, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateSSHClient, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrFailedToTestSSHConnection, err)
	}

	defer session.Close()

	err = session.Run("echo 'connection test'")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrFailedToTestSSHConnection, err)
	}

	return &Client{
		client: &goph.Client{Client: client},
		creds:  creds,
	}, nil
}

// Close terminates the underlying SSH transport session.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) run(command string) (*commandResult, error) {
	if c.client == nil {
		return nil, ErrNotConnected
	}

	cmd, err := c.client.Command(command)
	if err != nil {
		return nil, fmt.Errorf("failed to create command: %w", err)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()

	result := &commandResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			result.ExitCode = exitErr.ExitStatus()
		} else {
			result.ExitCode = -1
		}
	}

	return result, nil
}

// TempDir creates a scoped temporary directory on the remote machine.
func (c *Client) TempDir() (string, error) {
	result, err := c.run("mktemp -d -t " + scripts.ShellQuote(config.Config.TempDirPrefix+".XXXXXXXXXX"))
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 || result.Stdout == "" {
		return "", fmt.Errorf("%w: mktemp: %s", ErrRemoteCommandFailed, result.Stderr)
	}
	return result.Stdout, nil
}

// RemoveAll deletes a remote path recursively.
func (c *Client) RemoveAll(path string) error {
	result, err := c.run("rm -rf -- " + scripts.ShellQuote(path))
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: rm: %s", ErrRemoteCommandFailed, result.Stderr)
	}
	return nil
}

// LookPath resolves a command name on the remote machine.
func (c *Client) LookPath(name string) (string, error) {
	result, err := c.run("command -v -- " + scripts.ShellQuote(name))
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 || result.Stdout == "" {
		return "", fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	return result.Stdout, nil
}

// DialPort opens a raw socket to the given port on the remote machine,
// through the SSH channel.
func (c *DirectClient) DialPort(port int) (net.Conn, error) {
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client.Dial("tcp", net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", port)))
}
