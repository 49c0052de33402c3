package remote

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEchoBackend(t *testing.T) net.Listener {
	t.Helper()

	backend, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	go func() {
		for {
			conn, err := backend.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 64)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return backend
}

func TestTunnelForwardsTraffic(t *testing.T) {
	backend := startEchoBackend(t)

	tunnel, err := NewTunnel(0, func() (net.Conn, error) {
		return net.Dial("tcp", backend.Addr().String())
	})
	require.NoError(t, err)
	defer tunnel.Close()

	conn, err := net.Dial("tcp", tunnel.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 4)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestTunnelCloseStopsListening(t *testing.T) {
	backend := startEchoBackend(t)

	tunnel, err := NewTunnel(0, func() (net.Conn, error) {
		return net.Dial("tcp", backend.Addr().String())
	})
	require.NoError(t, err)

	addr := tunnel.LocalAddr().String()
	require.NoError(t, tunnel.Close())

	_, err = net.Dial("tcp", addr)
	assert.Error(t, err)
}

func TestTunnelDialFailureClosesClient(t *testing.T) {
	tunnel, err := NewTunnel(0, func() (net.Conn, error) {
		return nil, errors.New("remote endpoint gone")
	})
	require.NoError(t, err)
	defer tunnel.Close()

	conn, err := net.Dial("tcp", tunnel.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	assert.Error(t, err)
}
