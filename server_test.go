package zerodeploy

import (
	"errors"
	"io"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProc struct {
	cmdline    string
	stdout     io.Reader
	stderr     io.Reader
	status     int
	waitErr    error
	terminated int
	killed     int
	waitCalls  int
}

func (p *fakeProc) CommandLine() string { return p.cmdline }
func (p *fakeProc) Stdout() io.Reader   { return p.stdout }
func (p *fakeProc) Stderr() io.Reader   { return p.stderr }
func (p *fakeProc) Terminate() error    { p.terminated++; return nil }
func (p *fakeProc) Kill() error         { p.killed++; return nil }
func (p *fakeProc) ExitStatus() int     { return p.status }

func (p *fakeProc) Wait(timeout time.Duration) error {
	p.waitCalls++
	return p.waitErr
}

func newFakeProc(stdout, stderr string) *fakeProc {
	return &fakeProc{
		stdout: strings.NewReader(stdout),
		stderr: strings.NewReader(stderr),
	}
}

type fakeHost struct {
	tempDir   string
	tempErr   error
	copied    [][2]string
	files     map[string][]byte
	lookup    map[string]string
	lookCalls []string
	proc      *fakeProc
	startErr  error
	started   []string
	removed   []string
	removeErr error
	closed    int
	closeErr  error
}

func (h *fakeHost) TempDir() (string, error) {
	if h.tempErr != nil {
		return "", h.tempErr
	}
	if h.tempDir == "" {
		h.tempDir = "/tmp/zerodeploy.test"
	}
	return h.tempDir, nil
}

func (h *fakeHost) CopyTree(localDir, remoteDir string) error {
	h.copied = append(h.copied, [2]string{localDir, remoteDir})
	return nil
}

func (h *fakeHost) WriteFile(path string, data []byte, perm fs.FileMode) error {
	if h.files == nil {
		h.files = make(map[string][]byte)
	}
	h.files[path] = data
	return nil
}

func (h *fakeHost) LookPath(name string) (string, error) {
	h.lookCalls = append(h.lookCalls, name)
	if resolved, ok := h.lookup[name]; ok {
		return resolved, nil
	}
	return "", errors.New("not found")
}

func (h *fakeHost) Start(command string) (Process, error) {
	h.started = append(h.started, command)
	if h.startErr != nil {
		return nil, h.startErr
	}
	h.proc.cmdline = command
	return h.proc, nil
}

func (h *fakeHost) RemoveAll(path string) error {
	h.removed = append(h.removed, path)
	return h.removeErr
}

func (h *fakeHost) Close() error {
	h.closed++
	return h.closeErr
}

type fakeTunnel struct {
	closed   int
	closeErr error
}

func (t *fakeTunnel) Close() error {
	t.closed++
	return t.closeErr
}

// tunnelHost is tunneled-only, like an SSH host without in-channel dialing.
type tunnelHost struct {
	fakeHost
	tun     *fakeTunnel
	opened  [][2]int
	openErr error
}

func (h *tunnelHost) OpenTunnel(localPort, remotePort int) (Tunnel, error) {
	h.opened = append(h.opened, [2]int{localPort, remotePort})
	if h.openErr != nil {
		return nil, h.openErr
	}
	return h.tun, nil
}

// directHost can dial arbitrary remote ports through its transport.
type directHost struct {
	fakeHost
	dialed []int
}

type portConn struct {
	net.Conn
	port int
}

func (h *directHost) DialPort(port int) (net.Conn, error) {
	h.dialed = append(h.dialed, port)
	client, server := net.Pipe()
	_ = server
	return portConn{Conn: client, port: port}, nil
}

func testOptions() Options {
	return Options{
		ServerClass:   "pkg.server.Srv",
		ServiceClass:  "pkg.svc.Svc",
		CodeDir:       "./testcode",
		PythonVersion: "3.11",
	}
}

func newTunnelHost(stdout, stderr string) *tunnelHost {
	return &tunnelHost{
		fakeHost: fakeHost{
			lookup: map[string]string{"python3.11": "/usr/bin/python3.11"},
			proc:   newFakeProc(stdout, stderr),
		},
		tun: &fakeTunnel{},
	}
}

func newDirectHost(stdout, stderr string) *directHost {
	return &directHost{
		fakeHost: fakeHost{
			lookup: map[string]string{"python3.11": "/usr/bin/python3.11"},
			proc:   newFakeProc(stdout, stderr),
		},
	}
}

func TestNewTunneledDeployment(t *testing.T) {
	host := newTunnelHost("60123\n", "")

	server, err := New(host, testOptions())
	require.NoError(t, err)
	defer func() { require.NoError(t, server.Close()) }()

	assert.Equal(t, 60123, server.RemotePort())
	assert.NotZero(t, server.LocalPort())
	require.Len(t, host.opened, 1)
	assert.Equal(t, [2]int{server.LocalPort(), 60123}, host.opened[0])

	require.Len(t, host.copied, 1)
	assert.Equal(t, "./testcode", host.copied[0][0])
	assert.Equal(t, host.tempDir, host.copied[0][1])

	require.Len(t, host.files, 1)
	for path, script := range host.files {
		assert.Contains(t, path, host.tempDir)
		assert.Contains(t, string(script), "from pkg.server import Srv as ServerCls")
		assert.Contains(t, string(script), "from pkg.svc import Svc as ServiceCls")
		assert.NotContains(t, string(script), "$SERVER_MODULE$")
		assert.NotContains(t, string(script), "$EXTRA_SETUP$")
	}

	require.Len(t, host.started, 1)
	assert.Contains(t, host.started[0], "/usr/bin/python3.11")
	assert.Contains(t, host.started[0], host.tempDir)
}

func TestNewDirectDeploymentSkipsTunnel(t *testing.T) {
	host := newDirectHost("7070\n", "")

	server, err := New(host, testOptions())
	require.NoError(t, err)
	defer server.Close()

	assert.Equal(t, 7070, server.RemotePort())
	assert.Zero(t, server.LocalPort())

	conn, err := server.Connect()
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, []int{7070}, host.dialed)
	assert.Equal(t, 7070, conn.(portConn).port)
}

func TestHandshakeMalformedLine(t *testing.T) {
	host := newTunnelHost("garbage\nleftover", "traceback here")
	host.proc.status = 1

	server, err := New(host, testOptions())
	require.Error(t, err)
	require.NotNil(t, server)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, []byte("garbage\nleftover"), launchErr.Output)
	assert.Equal(t, []byte("traceback here"), launchErr.Stderr)
	assert.Equal(t, 1, launchErr.ExitStatus)
	assert.Contains(t, launchErr.CommandLine, "/usr/bin/python3.11")
	assert.Equal(t, 1, host.proc.terminated)

	// The partial deployment still owns its staging dir and transport.
	require.NoError(t, server.Close())
	assert.Equal(t, 1, host.closed)
	assert.Equal(t, []string{host.tempDir}, host.removed)
}

func TestHandshakeEmptyStream(t *testing.T) {
	host := newTunnelHost("", "")

	server, err := New(host, testOptions())
	require.Error(t, err)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Empty(t, launchErr.Output)
	assert.Equal(t, 1, host.proc.terminated)

	require.NoError(t, server.Close())
}

func TestHandshakeRejectsNegativePort(t *testing.T) {
	host := newTunnelHost("-5\n", "")

	server, err := New(host, testOptions())
	require.Error(t, err)

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, []byte("-5\n"), launchErr.Output)

	require.NoError(t, server.Close())
}

func TestCloseIsIdempotent(t *testing.T) {
	host := newTunnelHost("60123\n", "")

	server, err := New(host, testOptions())
	require.NoError(t, err)

	require.NoError(t, server.Close())
	require.NoError(t, server.Close())

	assert.Equal(t, 1, host.proc.terminated)
	assert.Equal(t, 1, host.proc.waitCalls)
	assert.Equal(t, 1, host.tun.closed)
	assert.Equal(t, 1, host.closed)
	assert.Equal(t, []string{host.tempDir}, host.removed)

	_, err = server.Connect()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseTimeoutKillsAndReRaises(t *testing.T) {
	host := newTunnelHost("60123\n", "")

	server, err := New(host, testOptions())
	require.NoError(t, err)

	host.proc.waitErr = ErrWaitTimeout

	err = server.CloseTimeout(time.Millisecond)
	require.ErrorIs(t, err, ErrTeardownTimeout)
	assert.Equal(t, 1, host.proc.killed)

	// The timeout re-raises immediately; later categories are untouched
	// until the next call.
	assert.Zero(t, host.tun.closed)
	assert.Zero(t, host.closed)
	assert.Empty(t, host.removed)

	require.NoError(t, server.CloseTimeout(time.Millisecond))
	assert.Equal(t, 1, host.proc.waitCalls)
	assert.Equal(t, 1, host.tun.closed)
	assert.Equal(t, 1, host.closed)
	assert.Equal(t, []string{host.tempDir}, host.removed)
}

func TestCloseSwallowsNonTimeoutFailures(t *testing.T) {
	host := newTunnelHost("60123\n", "")
	host.closeErr = errors.New("transport already gone")
	host.removeErr = errors.New("connection closed")
	host.tun.closeErr = errors.New("tunnel already closed")

	server, err := New(host, testOptions())
	require.NoError(t, err)

	host.proc.waitErr = errors.New("process already dead")

	require.NoError(t, server.Close())

	// Every resource category was still attempted exactly once.
	assert.Equal(t, 1, host.proc.waitCalls)
	assert.Equal(t, 1, host.tun.closed)
	assert.Equal(t, 1, host.closed)
	assert.Len(t, host.removed, 1)
}

func TestInterpreterExplicitOverride(t *testing.T) {
	host := newTunnelHost("60123\n", "")

	opts := testOptions()
	opts.Interpreter = "/opt/pypy/bin/pypy3"

	server, err := New(host, opts)
	require.NoError(t, err)
	defer server.Close()

	assert.Empty(t, host.lookCalls)
	assert.Contains(t, host.started[0], "/opt/pypy/bin/pypy3")
}

func TestInterpreterProbeOrder(t *testing.T) {
	host := newTunnelHost("60123\n", "")
	host.lookup = map[string]string{"python3": "/usr/bin/python3"}

	server, err := New(host, testOptions())
	require.NoError(t, err)
	defer server.Close()

	assert.Equal(t, []string{"python3.11", "python3"}, host.lookCalls)
	assert.Contains(t, host.started[0], "/usr/bin/python3")
}

func TestInterpreterExhaustion(t *testing.T) {
	host := newTunnelHost("", "")
	host.lookup = nil

	server, err := New(host, testOptions())
	require.ErrorIs(t, err, ErrInterpreterNotFound)
	assert.Empty(t, host.started)

	// Staging already happened; teardown reclaims it.
	require.NoError(t, server.Close())
	assert.Equal(t, 1, host.closed)
	assert.Equal(t, []string{host.tempDir}, host.removed)
}

func TestOptionsValidation(t *testing.T) {
	host := newTunnelHost("60123\n", "")

	opts := testOptions()
	opts.ServerClass = ""

	server, err := New(host, opts)
	require.ErrorIs(t, err, ErrInvalidOptions)
	require.NoError(t, server.Close())
}

func TestRejectsUndottedClassPath(t *testing.T) {
	host := newTunnelHost("60123\n", "")

	opts := testOptions()
	opts.ServiceClass = "NoModule"

	server, err := New(host, opts)
	require.ErrorIs(t, err, ErrInvalidOptions)
	require.NoError(t, server.Close())
}

func TestNoConnectPath(t *testing.T) {
	host := &fakeHost{
		lookup: map[string]string{"python3.11": "/usr/bin/python3.11"},
		proc:   newFakeProc("60123\n", ""),
	}

	server, err := New(host, testOptions())
	require.ErrorIs(t, err, ErrNoConnectPath)
	require.NoError(t, server.Close())
}

func TestFreeLocalPort(t *testing.T) {
	port, err := freeLocalPort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)

	// The probed port is released and bindable again.
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}
