package zerodeploy

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Group is an aggregate deployment across multiple remote targets, managed as
// a single unit. Session order follows the input target order.
type Group struct {
	servers []*Server
}

// NewGroup deploys one Server per host, in input order. On a mid-build
// failure the partially built group — including the failed, partially
// constructed session — is returned together with the error; no automatic
// rollback happens, so the caller decides whether to retry or Close the
// group to reclaim the targets built so far.
func NewGroup(hosts []Host, opts Options) (*Group, error) {
	g := &Group{}
	for i, host := range hosts {
		server, err := New(host, opts)
		g.servers = append(g.servers, server)
		if err != nil {
			return g, fmt.Errorf("target %d: %w", i, err)
		}
	}
	return g, nil
}

// Len reports the number of sessions currently held by the group.
func (g *Group) Len() int {
	return len(g.servers)
}

// At returns the i-th session, in target order.
func (g *Group) At(i int) *Server {
	return g.servers[i]
}

// Servers returns the held sessions in target order.
func (g *Group) Servers() []*Server {
	return g.servers
}

// ConnectAll opens one stream per session, in stored order, so callers may
// zip the result against the original target list. On failure the streams
// opened so far are returned alongside the error.
func (g *Group) ConnectAll() ([]net.Conn, error) {
	conns := make([]net.Conn, 0, len(g.servers))
	for i, server := range g.servers {
		conn, err := server.Connect()
		if err != nil {
			return conns, fmt.Errorf("target %d: %w", i, err)
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

// Close tears down every session, waiting indefinitely on process exits.
func (g *Group) Close() error {
	return g.CloseTimeout(0)
}

// CloseTimeout tears down every session. Sessions are popped from the front
// one at a time, so a teardown failure on one session never prevents
// attempting the rest; the per-session errors are joined and returned.
func (g *Group) CloseTimeout(timeout time.Duration) error {
	var errs []error
	for len(g.servers) > 0 {
		server := g.servers[0]
		g.servers = g.servers[1:]
		if err := server.CloseTimeout(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
