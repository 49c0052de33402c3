package zerodeploy

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOptions      = errors.New("invalid deployment options")
	ErrStagingFailed       = errors.New("failed to stage code on the remote host")
	ErrInterpreterNotFound = errors.New("no remote interpreter candidate resolved")
	ErrNoConnectPath       = errors.New("host offers neither direct connect nor tunneling")
	ErrTunnelFailed        = errors.New("failed to open tunnel")
	ErrClosed              = errors.New("deployment is closed")
	ErrWaitTimeout         = errors.New("timed out waiting for process exit")
	ErrTeardownTimeout     = errors.New("teardown timed out")
)

// LaunchError reports a failed spawn or handshake. Output holds every byte
// read from stdout before the failure concatenated with whatever the process
// printed afterwards; Stderr holds the drained error stream.
type LaunchError struct {
	CommandLine string
	ExitStatus  int
	Output      []byte
	Stderr      []byte
	Err         error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("server process failed to report a port (command: %s, exit status: %d, cause: %v, stdout: %q, stderr: %q)",
		e.CommandLine, e.ExitStatus, e.Err, e.Output, e.Stderr)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
