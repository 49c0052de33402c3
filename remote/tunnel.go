package remote

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"zerodeploy"
	"zerodeploy/internal/logger"
)

// DialFunc opens one connection to the tunnel's remote endpoint.
type DialFunc func() (net.Conn, error)

// Tunnel forwards connections accepted on a loopback listener to a remote
// endpoint, one dialed channel per accepted connection.
type Tunnel struct {
	ln   net.Listener
	dial DialFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewTunnel listens on 127.0.0.1:localPort (a port of zero picks an
// ephemeral one) and forwards every accepted connection through dial.
func NewTunnel(localPort int, dial DialFunc) (*Tunnel, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort)))
	if err != nil {
		return nil, err
	}

	t := &Tunnel{
		ln:    ln,
		dial:  dial,
		conns: make(map[net.Conn]struct{}),
	}
	t.wg.Add(1)
	go t.serve()
	return t, nil
}

// LocalAddr is the listener's loopback address.
func (t *Tunnel) LocalAddr() net.Addr {
	return t.ln.Addr()
}

func (t *Tunnel) serve() {
	defer t.wg.Done()
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			return
		}
		t.wg.Add(1)
		go t.forward(conn)
	}
}

func (t *Tunnel) forward(local net.Conn) {
	defer t.wg.Done()

	remote, err := t.dial()
	if err != nil {
		logger.Debug("tunnel: dial remote endpoint: %v", err)
		_ = local.Close()
		return
	}

	t.track(local)
	t.track(remote)
	defer t.untrack(local)
	defer t.untrack(remote)

	go func() {
		_, _ = io.Copy(remote, local)
		_ = remote.Close()
	}()
	_, _ = io.Copy(local, remote)
	_ = local.Close()
	_ = remote.Close()
}

func (t *Tunnel) track(conn net.Conn) {
	t.mu.Lock()
	t.conns[conn] = struct{}{}
	t.mu.Unlock()
}

func (t *Tunnel) untrack(conn net.Conn) {
	t.mu.Lock()
	delete(t.conns, conn)
	t.mu.Unlock()
}

// Close stops the listener, severs active forwards and waits for them to
// drain.
func (t *Tunnel) Close() error {
	err := t.ln.Close()

	t.mu.Lock()
	for conn := range t.conns {
		_ = conn.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	return err
}

// OpenTunnel forwards local localPort to remotePort on the remote machine
// through the SSH channel.
func (c *Client) OpenTunnel(localPort, remotePort int) (zerodeploy.Tunnel, error) {
	if c.client == nil {
		return nil, ErrNotConnected
	}

	return NewTunnel(localPort, func() (net.Conn, error) {
		return c.client.Dial("tcp", net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", remotePort)))
	})
}
