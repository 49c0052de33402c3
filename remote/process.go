package remote

import (
	"fmt"
	"io"
	"sync"
	"time"

	"zerodeploy"

	"github.com/melbahja/goph"
	"golang.org/x/crypto/ssh"
)

// Process is a handle to a command spawned over SSH with piped streams. No
// pseudo-terminal is requested, so the remote process has no controlling
// terminal.
type Process struct {
	cmd     *goph.Cmd
	cmdline string

	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	waitOnce sync.Once
	done     chan struct{}
	waitErr  error
	status   int
}

// Start spawns a shell command line on the remote machine. The returned
// Process keeps stdin open: closing it (via Terminate) is the exit signal
// the bootstrap script blocks on.
func (c *Client) Start(command string) (zerodeploy.Process, error) {
	if c.client == nil {
		return nil, ErrNotConnected
	}

	cmd, err := c.client.Command(command)
	if err != nil {
		return nil, fmt.Errorf("failed to create command: %w", err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cmd.Close()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cmd.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cmd.Close()
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		cmd.Close()
		return nil, err
	}

	return &Process{
		cmd:     cmd,
		cmdline: command,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		done:    make(chan struct{}),
		status:  -1,
	}, nil
}

func (p *Process) CommandLine() string {
	return p.cmdline
}

func (p *Process) Stdout() io.Reader {
	return p.stdout
}

func (p *Process) Stderr() io.Reader {
	return p.stderr
}

// Terminate closes remote stdin (end-of-stream is the script's exit signal)
// and delivers SIGTERM.
func (p *Process) Terminate() error {
	if p.stdin != nil {
		stdin := p.stdin
		p.stdin = nil
		if err := stdin.Close(); err != nil {
			return err
		}
	}
	return p.cmd.Signal(ssh.SIGTERM)
}

// Kill delivers SIGKILL and tears down the session channel.
func (p *Process) Kill() error {
	_ = p.cmd.Signal(ssh.SIGKILL)
	return p.cmd.Close()
}

// Wait blocks until the process exits. A timeout of zero waits indefinitely;
// an expired bounded wait returns zerodeploy.ErrWaitTimeout and leaves the
// process running.
func (p *Process) Wait(timeout time.Duration) error {
	p.waitOnce.Do(func() {
		go func() {
			err := p.cmd.Wait()
			p.waitErr = err
			p.status = exitStatus(err)
			close(p.done)
		}()
	})

	if timeout > 0 {
		select {
		case <-p.done:
		case <-time.After(timeout):
			return zerodeploy.ErrWaitTimeout
		}
	} else {
		<-p.done
	}
	return p.waitErr
}

// ExitStatus is valid once Wait has returned; -1 when unknown.
func (p *Process) ExitStatus() int {
	select {
	case <-p.done:
		return p.status
	default:
		return -1
	}
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus()
	}
	return -1
}
