package zerodeploy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"zerodeploy/internal/config"
	"zerodeploy/internal/logger"
	"zerodeploy/internal/scripts"

	"github.com/google/uuid"
)

// Server is one deployment: a staged code tree, a spawned listener process on
// a remote host, and a local path to reach it (tunnel or direct dial).
type Server struct {
	id      string
	host    Host
	cleaner Host
	direct  DirectConnector

	tempDir    string
	proc       Process
	remotePort int
	localPort  int
	tunnel     Tunnel
}

// New stages, spawns and connects a deployment on host. Acquisition is
// strictly ordered and every acquired resource is recorded on the Server
// before the next step runs, so construction failures still leave a Server
// whose Close reclaims whatever was acquired. New therefore returns a
// non-nil Server even on error; callers must Close it in all cases.
//
// The handshake read has no timeout: a remote process that never reports a
// port blocks New indefinitely.
func New(host Host, opts Options) (*Server, error) {
	opts.applyDefaults()

	s := &Server{
		id:      uuid.NewString(),
		host:    host,
		cleaner: host,
	}
	if dc, ok := host.(DirectConnector); ok {
		s.direct = dc
	}

	if err := opts.validate(); err != nil {
		return s, err
	}

	dir, err := host.TempDir()
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrStagingFailed, err)
	}
	s.tempDir = dir

	if err := host.CopyTree(opts.CodeDir, dir); err != nil {
		return s, fmt.Errorf("%w: %v", ErrStagingFailed, err)
	}

	script, err := renderScript(opts)
	if err != nil {
		return s, err
	}
	scriptPath := path.Join(dir, config.Config.ScriptFileName)
	if err := host.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return s, fmt.Errorf("%w: %v", ErrStagingFailed, err)
	}

	interpreter, err := resolveInterpreter(host, opts)
	if err != nil {
		return s, err
	}

	command, err := scripts.LaunchCommand(dir, interpreter, scriptPath)
	if err != nil {
		return s, err
	}

	proc, err := host.Start(command)
	if err != nil {
		return s, &LaunchError{CommandLine: command, ExitStatus: -1, Err: err}
	}
	s.proc = proc

	port, err := s.handshake()
	if err != nil {
		return s, err
	}
	s.remotePort = port

	if s.direct == nil {
		tunneler, ok := host.(Tunneler)
		if !ok {
			return s, ErrNoConnectPath
		}
		localPort, err := freeLocalPort()
		if err != nil {
			return s, fmt.Errorf("%w: %v", ErrTunnelFailed, err)
		}
		tunnel, err := tunneler.OpenTunnel(localPort, port)
		if err != nil {
			return s, fmt.Errorf("%w: %v", ErrTunnelFailed, err)
		}
		s.localPort = localPort
		s.tunnel = tunnel
	}

	logger.Info("deployment %s: remote server listening on port %d", s.id, port)
	return s, nil
}

func renderScript(opts Options) (string, error) {
	serverModule, serverClass, err := scripts.SplitClassPath(opts.ServerClass)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	serviceModule, serviceClass, err := scripts.SplitClassPath(opts.ServiceClass)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	return scripts.Render(opts.Script, scripts.Params{
		ServerModule:  serverModule,
		ServerClass:   serverClass,
		ServiceModule: serviceModule,
		ServiceClass:  serviceClass,
		ExtraSetup:    opts.ExtraSetup,
	})
}

func resolveInterpreter(host Host, opts Options) (string, error) {
	if opts.Interpreter != "" {
		return opts.Interpreter, nil
	}

	for _, candidate := range opts.interpreterCandidates() {
		resolved, err := host.LookPath(candidate)
		if err != nil {
			logger.Debug("interpreter candidate %s did not resolve: %v", candidate, err)
			continue
		}
		return resolved, nil
	}
	return "", ErrInterpreterNotFound
}

// handshake reads the single port line the bootstrap script writes to stdout.
// On any failure the process is terminated and both streams are drained into
// the returned LaunchError.
func (s *Server) handshake() (int, error) {
	reader := bufio.NewReader(s.proc.Stdout())

	line, readErr := reader.ReadString('\n')
	port, parseErr := strconv.Atoi(strings.TrimSpace(line))

	if readErr == nil && parseErr == nil && port >= 0 {
		return port, nil
	}

	cause := readErr
	if cause == nil {
		cause = parseErr
	}
	if cause == nil {
		cause = fmt.Errorf("negative port %d", port)
	}

	// Ignore termination errors: the process may already be gone.
	_ = s.proc.Terminate()

	rest, _ := io.ReadAll(reader)
	stderr, _ := io.ReadAll(s.proc.Stderr())
	if err := s.proc.Wait(0); err != nil {
		logger.Debug("deployment %s: wait after failed handshake: %v", s.id, err)
	}

	return 0, &LaunchError{
		CommandLine: s.proc.CommandLine(),
		ExitStatus:  s.proc.ExitStatus(),
		Output:      append([]byte(line), rest...),
		Stderr:      stderr,
		Err:         cause,
	}
}

// ID is the unique identifier of this deployment, used in log output.
func (s *Server) ID() string {
	return s.id
}

// RemotePort is the port the remote listener bound. It is meaningful only
// between a successful New and Close.
func (s *Server) RemotePort() int {
	return s.remotePort
}

// LocalPort is the local end of the tunnel; zero in direct-connect mode.
func (s *Server) LocalPort() int {
	return s.localPort
}

// Connect opens a raw bidirectional byte stream to the deployed listener.
// Layering an application protocol on the stream is the caller's concern.
func (s *Server) Connect() (net.Conn, error) {
	switch {
	case s.direct != nil && s.remotePort != 0:
		return s.direct.DialPort(s.remotePort)
	case s.tunnel != nil:
		return net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(s.localPort)))
	default:
		return nil, ErrClosed
	}
}

// Close releases every resource the deployment owns, waiting indefinitely
// for the remote process to exit.
func (s *Server) Close() error {
	return s.CloseTimeout(0)
}

// CloseTimeout releases every resource the deployment owns, in order: the
// spawned process, the tunnel, the host transport, the remote temp directory.
// Each resource is checked for presence and cleared regardless of outcome,
// so repeated calls are no-ops. Failures are logged and swallowed so one bad
// step never blocks releasing the rest — with one exception: when the
// bounded process wait expires, the process is force-killed and the timeout
// is returned immediately.
func (s *Server) CloseTimeout(timeout time.Duration) error {
	if s.proc != nil {
		proc := s.proc
		s.proc = nil
		if err := proc.Terminate(); err != nil {
			logger.Debug("deployment %s: terminate server process: %v", s.id, err)
		}
		if err := proc.Wait(timeout); err != nil {
			if errors.Is(err, ErrWaitTimeout) {
				_ = proc.Kill()
				return fmt.Errorf("%w: server process: %v", ErrTeardownTimeout, err)
			}
			logger.Debug("deployment %s: wait for server process: %v", s.id, err)
		}
	}

	if s.tunnel != nil {
		tunnel := s.tunnel
		s.tunnel = nil
		if err := tunnel.Close(); err != nil {
			logger.Debug("deployment %s: close tunnel: %v", s.id, err)
		}
	}

	if s.host != nil {
		host := s.host
		s.host = nil
		s.direct = nil
		if err := host.Close(); err != nil {
			logger.Debug("deployment %s: close host transport: %v", s.id, err)
		}
	}

	// The host transport is already closed, so this usually fails and the
	// staged directory is reclaimed by the bootstrap script's exit hook
	// instead.
	if s.tempDir != "" {
		dir := s.tempDir
		s.tempDir = ""
		cleaner := s.cleaner
		s.cleaner = nil
		if cleaner != nil {
			if err := cleaner.RemoveAll(dir); err != nil {
				logger.Debug("deployment %s: remove remote temp dir %s: %v", s.id, dir, err)
			}
		}
	}

	return nil
}

// freeLocalPort asks the OS for an ephemeral bindable port and releases it
// before handing the number to the tunnel. A narrow race window between
// probing and binding is inherent to this strategy.
func freeLocalPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
