package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRWGateExclusiveWaitsForShared(t *testing.T) {
	g := &RWGate{}
	g.Acquire()

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Release()
		close(released)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.AcquireExclusive(ctx))
	<-released
	g.ReleaseExclusive()
}

func TestRWGateExclusiveCancelled(t *testing.T) {
	g := &RWGate{}
	g.Acquire()
	defer g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := g.AcquireExclusive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHookChainOrdering(t *testing.T) {
	var order []string
	c := &HookChain{}
	c.Register(PhaseRejoinCoordinator, func() error { order = append(order, "rejoin"); return nil })
	c.Register(PhaseResetIdentity, func() error { order = append(order, "identity"); return nil })
	c.Register(PhaseResetWrapperState, func() error { order = append(order, "wrapper"); return nil })

	require.NoError(t, c.Run())
	require.Equal(t, []string{"identity", "wrapper", "rejoin"}, order)
}
