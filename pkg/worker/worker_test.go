package worker

import (
	"context"
	"testing"
	"time"

	"github.com/pc2/dmtcp/pkg/link"
	"github.com/pc2/dmtcp/pkg/protocol"
	"github.com/pc2/dmtcp/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeApp counts Suspend/Resume calls instead of touching real threads.
type fakeApp struct {
	suspended int
	resumed   int
}

func (a *fakeApp) Suspend(ctx context.Context) error { a.suspended++; return nil }
func (a *fakeApp) Resume(ctx context.Context) error  { a.resumed++; return nil }

// fakeEngine records Dump/Restore calls without touching process memory.
type fakeEngine struct {
	dumped []string
}

func (e *fakeEngine) Dump(dir, imageName string) error {
	e.dumped = append(e.dumped, dir+"/"+imageName)
	return nil
}
func (e *fakeEngine) Restore(dir, imageName string) error { return nil }

func testWorkerID() types.UniquePid {
	return types.UniquePid{HostID: 1, Pid: 42, StartTime: 100, Generation: 0}
}

// stageSequence mirrors coordinator.checkpointStages: the command the
// coordinator sends and the WorkerState ack it expects back, in order.
func stageSequence() []struct {
	command protocol.MessageType
	awaited types.WorkerState
} {
	return []struct {
		command protocol.MessageType
		awaited types.WorkerState
	}{
		{protocol.DMT_DO_SUSPEND, types.StateSuspended},
		{protocol.DMT_DO_FD_LEADER_ELECTION, types.StateFDLeaderElection},
		{protocol.DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_REGISTER, types.StatePreCkptNSRegister},
		{protocol.DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_QUERY, types.StatePreCkptNSQuery},
		{protocol.DMT_DO_DRAIN, types.StateDrained},
		{protocol.DMT_DO_CHECKPOINT, types.StateCheckpointed},
		{protocol.DMT_DO_REGISTER_NAME_SERVICE_DATA, types.StateNameServiceDataRegistered},
		{protocol.DMT_DO_SEND_QUERIES, types.StateDoneQuerying},
		{protocol.DMT_DO_REFILL, types.StateRefilled},
		{protocol.DMT_DO_RESUME, types.StateRunning},
	}
}

// dialCoordinatorSide accepts one worker join and acks DMT_ACCEPT,
// standing in for coordinator.Orchestrator.admit.
func dialCoordinatorSide(t *testing.T, ln *link.Listener) *link.Conn {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)

	_, _, err = conn.Recv()
	require.NoError(t, err)

	accept := protocol.New(protocol.DMT_ACCEPT)
	require.NoError(t, conn.Send(accept, nil))
	return conn
}

func TestRunCompletesFullCycleWithCooperatingCoordinator(t *testing.T) {
	ln, err := link.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	app := &fakeApp{}
	engine := &fakeEngine{}
	w := New(Config{
		ID:             testWorkerID(),
		CompGroup:      testWorkerID(),
		App:            app,
		Engine:         engine,
		CheckpointRoot: t.TempDir(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	coordSide := make(chan *link.Conn, 1)
	go func() { coordSide <- dialCoordinatorSide(t, ln) }()
	require.NoError(t, w.Connect(ctx, "tcp", ln.Addr().String(), false))

	coordConn := <-coordSide
	defer coordConn.Close()

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	for _, step := range stageSequence() {
		cmd := protocol.New(step.command)
		require.NoError(t, coordConn.Send(cmd, nil))

		ack, _, err := coordConn.Recv()
		require.NoError(t, err)
		require.Equal(t, protocol.DMT_OK, ack.Type)
		require.Equal(t, step.awaited, ack.State)
	}

	require.Equal(t, types.StateRunning, w.State())
	require.Equal(t, 1, app.suspended)
	require.Equal(t, 1, app.resumed)
	require.Len(t, engine.dumped, 1)

	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker.Run did not return after Stop")
	}
}

func TestConnectSendsRestartMessageOnRestartPath(t *testing.T) {
	ln, err := link.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	w := New(Config{ID: testWorkerID(), CompGroup: testWorkerID(), App: &fakeApp{}})

	joinType := make(chan protocol.MessageType, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		msg, _, err := conn.Recv()
		if err != nil {
			return
		}
		joinType <- msg.Type
		accept := protocol.New(protocol.DMT_ACCEPT)
		_ = conn.Send(accept, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Connect(ctx, "tcp", ln.Addr().String(), true))

	select {
	case mt := <-joinType:
		require.Equal(t, protocol.DMT_RESTART_WORKER, mt)
	case <-time.After(time.Second):
		t.Fatal("coordinator side never received a join message")
	}
}

func TestRunReturnsOnKillPeer(t *testing.T) {
	ln, err := link.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	w := New(Config{ID: testWorkerID(), CompGroup: testWorkerID(), App: &fakeApp{}})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	coordSide := make(chan *link.Conn, 1)
	go func() { coordSide <- dialCoordinatorSide(t, ln) }()
	require.NoError(t, w.Connect(ctx, "tcp", ln.Addr().String(), false))

	coordConn := <-coordSide
	defer coordConn.Close()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	kill := protocol.New(protocol.DMT_KILL_PEER)
	require.NoError(t, coordConn.Send(kill, nil))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker.Run did not return after DMT_KILL_PEER")
	}
}

func TestAbortsCycleWhenApplicationSuspendFails(t *testing.T) {
	ln, err := link.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	w := New(Config{ID: testWorkerID(), CompGroup: testWorkerID(), App: failingApp{}, CheckpointRoot: t.TempDir()})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	coordSide := make(chan *link.Conn, 1)
	go func() { coordSide <- dialCoordinatorSide(t, ln) }()
	require.NoError(t, w.Connect(ctx, "tcp", ln.Addr().String(), false))

	coordConn := <-coordSide
	defer coordConn.Close()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	suspend := protocol.New(protocol.DMT_DO_SUSPEND)
	require.NoError(t, coordConn.Send(suspend, nil))

	// The suspend ack for stage 1 still arrives; the failure happens
	// inside stage 2, after which Run should return an error.
	ack, _, err := coordConn.Recv()
	require.NoError(t, err)
	require.Equal(t, types.StateSuspended, ack.State)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker.Run did not return after application suspend failure")
	}
}

type failingApp struct{}

func (failingApp) Suspend(ctx context.Context) error { return context.DeadlineExceeded }
func (failingApp) Resume(ctx context.Context) error  { return nil }
