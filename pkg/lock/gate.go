// Package lock implements the wrapper-execution gate that keeps
// syscall-wrapper-equivalent operations from interleaving with a
// checkpoint, and the ordered hook chain that stands in for
// pthread_atfork's prepare/parent/child sequencing.
package lock

import (
	"context"
	"sync"
)

// RWGate is the wrapper-execution lock: application operations that
// must not interleave with a checkpoint acquire it in shared mode
// (Acquire/Release); the checkpoint thread acquires it in exclusive
// mode around stages 2-4 (AcquireExclusive/ReleaseExclusive). Exclusive
// acquisition is context-aware so it can be abandoned if the cycle is
// killed while waiting for in-flight shared holders to drain.
type RWGate struct {
	mu sync.RWMutex
}

// Acquire takes the gate in shared mode, the mode every wrapper-style
// call uses.
func (g *RWGate) Acquire() {
	g.mu.RLock()
}

// Release releases a shared acquisition.
func (g *RWGate) Release() {
	g.mu.RUnlock()
}

// AcquireExclusive takes the gate in exclusive mode, blocking until no
// shared holder remains, or returns ctx.Err() if ctx is cancelled
// first. Go's sync.RWMutex has no cancellable Lock, so cancellation is
// approximated by racing the blocking Lock against ctx.Done() on a
// background goroutine; if ctx fires first the Lock is still let
// through but immediately unlocked, since sync.RWMutex offers no way
// to abandon a pending Lock() call.
func (g *RWGate) AcquireExclusive(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		go func() {
			<-done
			g.mu.Unlock()
		}()
		return ctx.Err()
	}
}

// ReleaseExclusive releases an exclusive acquisition obtained via a
// successful AcquireExclusive.
func (g *RWGate) ReleaseExclusive() {
	g.mu.Unlock()
}
