// Package rewire re-establishes peer-to-peer TCP connections at
// restart using the coordinator's Name Service: the leader side of a
// checkpointed socket pair opens a fresh listener and publishes
// {ConnectionIdentifier -> (host, port)}, the follower side queries
// for that identifier and connects. Both ends then dup2 the new FD
// over the checkpointed FD number (left to the caller, which owns the
// process's actual file descriptor table).
package rewire

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pc2/dmtcp/pkg/registry"
)

// Publisher is the subset of nameservice.Service the rewirer needs on
// the leader side.
type Publisher interface {
	RegisterSync(namespace [8]byte, key, value []byte) error
}

// Querier is the subset of nameservice.Service the rewirer needs on
// the follower side.
type Querier interface {
	Query(namespace [8]byte, key []byte) ([]byte, bool, error)
}

// Rewirer reconnects one TCP Connection per call to Leader or
// Follower.
type Rewirer struct {
	namespace [8]byte

	// PollInterval controls how often Follower retries an unresolved
	// Name Service query.
	PollInterval time.Duration
}

// New returns a Rewirer scoped to one restart group's namespace.
func New(namespace [8]byte) *Rewirer {
	return &Rewirer{namespace: namespace, PollInterval: 100 * time.Millisecond}
}

// Leader opens a listener on the given network ("tcp", "tcp4",
// "tcp6"), publishes its address under conn.ID via pub, accepts
// exactly one connection, and returns the accepted net.Conn for the
// caller to dup2 over conn's original FDs.
func (rw *Rewirer) Leader(ctx context.Context, network string, conn *registry.Connection, pub Publisher) (net.Conn, error) {
	ln, err := net.Listen(network, "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("rewire: listening for %s: %w", conn.ID, err)
	}
	defer ln.Close()

	key := []byte(conn.ID.String())
	if err := pub.RegisterSync(rw.namespace, key, []byte(ln.Addr().String())); err != nil {
		return nil, fmt.Errorf("rewire: publishing address for %s: %w", conn.ID, err)
	}

	accepted := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		accepted <- c
	}()

	select {
	case c := <-accepted:
		return c, nil
	case err := <-errCh:
		return nil, fmt.Errorf("rewire: accepting peer for %s: %w", conn.ID, err)
	case <-ctx.Done():
		return nil, fmt.Errorf("rewire: leader wait for %s: %w", conn.ID, ctx.Err())
	}
}

// Follower queries the Name Service for peer's published address,
// retrying at PollInterval until ctx expires, then dials it.
func (rw *Rewirer) Follower(ctx context.Context, network string, peer registry.Identifier, q Querier) (net.Conn, error) {
	key := []byte(peer.String())

	ticker := time.NewTicker(rw.pollInterval())
	defer ticker.Stop()

	for {
		value, ok, err := q.Query(rw.namespace, key)
		if err != nil {
			return nil, fmt.Errorf("rewire: querying address for %s: %w", peer, err)
		}
		if ok {
			dialer := &net.Dialer{}
			conn, err := dialer.DialContext(ctx, network, string(value))
			if err != nil {
				return nil, fmt.Errorf("rewire: connecting to %s at %s: %w", peer, value, err)
			}
			return conn, nil
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return nil, fmt.Errorf("rewire: follower wait for %s: %w", peer, ctx.Err())
		}
	}
}

func (rw *Rewirer) pollInterval() time.Duration {
	if rw.PollInterval <= 0 {
		return 100 * time.Millisecond
	}
	return rw.PollInterval
}
