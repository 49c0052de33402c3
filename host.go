// Package zerodeploy provisions short-lived server deployments on remote
// machines: it stages a code tree and a rendered bootstrap script on a remote
// execution host, spawns the script, learns the listener's ephemeral port
// through a single-line stdout handshake, and exposes the listener locally
// either through a forwarding tunnel or by dialing straight through the
// host's transport. Teardown releases every acquired resource best-effort,
// surfacing only explicit timeouts.
package zerodeploy

import (
	"io"
	"io/fs"
	"net"
	"time"
)

// Host is the remote execution surface a deployment consumes. remote.Client
// provides the SSH implementation.
type Host interface {
	// TempDir creates a fresh scoped temporary directory on the remote
	// machine and returns its absolute path.
	TempDir() (string, error)

	// CopyTree recreates the directory tree rooted at localDir under
	// remoteDir, as remoteDir/<basename of localDir>.
	CopyTree(localDir, remoteDir string) error

	// WriteFile writes data to an absolute remote path.
	WriteFile(path string, data []byte, perm fs.FileMode) error

	// LookPath resolves a remote command name to an invocable path. A
	// failed resolution returns an error; it is not fatal to the caller,
	// which probes candidates in preference order.
	LookPath(name string) (string, error)

	// Start spawns a shell command line on the remote machine with its
	// standard streams piped back to the caller.
	Start(command string) (Process, error)

	// RemoveAll deletes a remote path recursively.
	RemoveAll(path string) error

	// Close terminates the underlying transport session.
	Close() error
}

// Process is a handle to a spawned remote command.
type Process interface {
	// CommandLine reports the invocation for diagnostics.
	CommandLine() string

	Stdout() io.Reader
	Stderr() io.Reader

	// Terminate asks the process to exit gracefully: remote stdin is
	// closed (the bootstrap script's exit signal) and a termination
	// signal is delivered.
	Terminate() error

	// Kill forcibly destroys the process and its session.
	Kill() error

	// Wait blocks until the process exits. A timeout of zero waits
	// indefinitely; an expired bounded wait returns ErrWaitTimeout.
	Wait(timeout time.Duration) error

	// ExitStatus is valid once Wait has returned; -1 when unknown.
	ExitStatus() int
}

// DirectConnector is declared by hosts whose transport can open a raw socket
// to an arbitrary port on the remote machine. Deployments on such hosts skip
// tunneling entirely.
type DirectConnector interface {
	DialPort(port int) (net.Conn, error)
}

// Tunneler is declared by hosts that can forward a local port to a remote
// port. It is consulted only when the host is not a DirectConnector.
type Tunneler interface {
	OpenTunnel(localPort, remotePort int) (Tunnel, error)
}

// Tunnel is an open local-to-remote forwarding channel.
type Tunnel interface {
	Close() error
}
