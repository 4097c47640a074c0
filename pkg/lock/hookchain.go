package lock

import "sync"

// Phase identifies one of the three ordered moments in a worker's
// restart-rejoin sequence, the Go-idiomatic stand-in for
// pthread_atfork's prepare/parent/child triple: a restarted worker
// must reset its virtual-pid identity before it resets wrapper state,
// and must reset wrapper state before it rejoins the coordinator.
type Phase int

const (
	PhaseResetIdentity Phase = iota
	PhaseResetWrapperState
	PhaseRejoinCoordinator
	phaseCount
)

// Hook is a callback registered against a Phase.
type Hook func() error

// HookChain holds hooks registered per Phase and runs them, on
// Run, in registration order within each phase and in Phase order
// across phases.
type HookChain struct {
	mu    sync.Mutex
	hooks [phaseCount][]Hook
}

// Register appends fn to the list of hooks run at phase p.
func (c *HookChain) Register(p Phase, fn Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[p] = append(c.hooks[p], fn)
}

// Run executes every registered hook in PhaseResetIdentity,
// PhaseResetWrapperState, PhaseRejoinCoordinator order, stopping at
// the first error.
func (c *HookChain) Run() error {
	c.mu.Lock()
	snapshot := c.hooks
	c.mu.Unlock()

	for p := Phase(0); p < phaseCount; p++ {
		for _, h := range snapshot[p] {
			if err := h(); err != nil {
				return err
			}
		}
	}
	return nil
}
