package remote

import "errors"

// SSH connection errors
var (
	ErrNoAuthMethodProvided      = errors.New("no valid authentication method provided")
	ErrNotConnected              = errors.New("SSH connection not established")
	ErrFailedToCreateAuth        = errors.New("failed to create auth")
	ErrFailedToCreateSSHClient   = errors.New("failed to create SSH client")
	ErrFailedToTestSSHConnection = errors.New("failed to test SSH connection")
)

// Remote execution errors
var (
	ErrCommandNotFound     = errors.New("command not found on remote host")
	ErrRemoteCommandFailed = errors.New("remote command failed")
)
