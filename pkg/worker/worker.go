// Package worker implements the worker side of the barrier protocol:
// the CKPT goroutine that is the sole speaker to the coordinator
// during a checkpoint cycle, driving the local Resource Registry
// through the stage sequence while the application is suspended.
package worker

import (
	"context"
	"fmt"

	"github.com/pc2/dmtcp/pkg/checkpoint"
	"github.com/pc2/dmtcp/pkg/link"
	"github.com/pc2/dmtcp/pkg/lock"
	"github.com/pc2/dmtcp/pkg/log"
	"github.com/pc2/dmtcp/pkg/protocol"
	"github.com/pc2/dmtcp/pkg/registry"
	"github.com/pc2/dmtcp/pkg/types"
)

// Application is the worker's hook into suspending and resuming the
// user program's threads. In cmd/dmtcp-worker this sends the
// checkpoint signal to the child process and returns without waiting
// on it; tests wire a fake that just counts calls.
type Application interface {
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Worker is one checkpoint-managed process's CKPT half: the
// coordinator link, the local Resource Registry, the
// wrapper-execution lock, and the atfork hook chain.
type Worker struct {
	id        types.UniquePid
	compGroup types.UniquePid

	conn     *link.Conn
	registry *registry.Registry
	gate     *lock.RWGate
	hooks    *lock.HookChain
	app      Application
	engine   checkpoint.Engine
	copier   registry.FileCopier

	checkpointRoot string

	state  types.WorkerState
	stopCh chan struct{}
}

// Config configures a new Worker.
type Config struct {
	ID             types.UniquePid
	CompGroup      types.UniquePid
	App            Application
	Engine         checkpoint.Engine
	CheckpointRoot string
}

// New returns a Worker not yet connected to any coordinator.
func New(cfg Config) *Worker {
	return &Worker{
		id:             cfg.ID,
		compGroup:      cfg.CompGroup,
		registry:       registry.New(cfg.ID),
		gate:           &lock.RWGate{},
		hooks:          &lock.HookChain{},
		app:            cfg.App,
		engine:         cfg.Engine,
		copier:         checkpoint.FileCopier{},
		checkpointRoot: cfg.CheckpointRoot,
		state:          types.StateRunning,
		stopCh:         make(chan struct{}),
	}
}

// Hooks exposes the atfork hook chain so a caller's fork() wrapper
// can register the three-phase rejoin sequence (§5): reset identity,
// reset wrapper state, rejoin the coordinator.
func (w *Worker) Hooks() *lock.HookChain { return w.hooks }

// Registry exposes the Resource Registry so a caller's syscall
// wrappers can register newly opened connections as they occur.
func (w *Worker) Registry() *registry.Registry { return w.registry }

// State returns the worker's current WorkerState.
func (w *Worker) State() types.WorkerState { return w.state }

// Connect dials the coordinator, sends DMT_NEW_WORKER (or
// DMT_RESTART_WORKER, on the restart path), and blocks for the
// coordinator's DMT_ACCEPT.
func (w *Worker) Connect(ctx context.Context, network, addr string, restart bool) error {
	conn, err := link.Dial(ctx, network, addr)
	if err != nil {
		return fmt.Errorf("worker: connecting to coordinator: %w", err)
	}

	msgType := protocol.DMT_NEW_WORKER
	if restart {
		msgType = protocol.DMT_RESTART_WORKER
	}
	join := protocol.New(msgType)
	join.From = w.id
	join.CompGroup = w.compGroup
	if err := conn.Send(join, nil); err != nil {
		conn.Close()
		return fmt.Errorf("worker: sending join: %w", err)
	}

	reply, _, err := conn.Recv()
	if err != nil {
		conn.Close()
		return fmt.Errorf("worker: awaiting accept: %w", err)
	}
	if reply.Type != protocol.DMT_ACCEPT {
		conn.Close()
		return fmt.Errorf("worker: coordinator rejected join: %s", reply.Type)
	}

	w.conn = conn
	return nil
}

// Run is the CKPT main loop: it repeats one checkpoint cycle (stages
// 1-4) each time the coordinator initiates one, until ctx is
// cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		default:
		}

		msg, _, err := w.conn.Recv()
		if err != nil {
			return fmt.Errorf("worker: reading from coordinator link: %w", err)
		}

		if msg.Type == protocol.DMT_KILL_PEER {
			log.Logger.Warn().Msg("worker: coordinator issued kill, exiting")
			return nil
		}
		if msg.Type != protocol.DMT_DO_SUSPEND {
			continue // any other message is ignored outside a cycle
		}

		if err := w.runCycle(ctx); err != nil {
			return fmt.Errorf("worker: checkpoint cycle: %w", err)
		}
	}
}

// Stop requests Run to return at the next opportunity.
func (w *Worker) Stop() {
	close(w.stopCh)
	if w.conn != nil {
		w.conn.Close()
	}
}

// runCycle drives stages 1-4 for one checkpoint cycle. The
// wrapper-execution lock is acquired in stage1Suspend and released
// exactly once: by stage4Resume on success, or here if any earlier
// stage fails.
func (w *Worker) runCycle(ctx context.Context) error {
	if err := w.stage1Suspend(ctx); err != nil {
		return err
	}

	if err := w.stage2SuspendAndCheckpoint(ctx); err != nil {
		w.gate.ReleaseExclusive()
		return err
	}
	if err := w.stage3Refill(ctx); err != nil {
		w.gate.ReleaseExclusive()
		return err
	}
	return w.stage4Resume(ctx)
}

// stage1Suspend acquires the wrapper-execution lock exclusively; it is
// released either by stage4Resume on success or by runCycle if a
// later stage fails.
func (w *Worker) stage1Suspend(ctx context.Context) error {
	if err := w.gate.AcquireExclusive(ctx); err != nil {
		return fmt.Errorf("worker: acquiring wrapper-execution lock: %w", err)
	}
	w.state = types.StateSuspended
	return w.ackState(types.StateSuspended)
}

func (w *Worker) stage2SuspendAndCheckpoint(ctx context.Context) error {
	if err := w.app.Suspend(ctx); err != nil {
		return fmt.Errorf("worker: suspending application threads: %w", err)
	}

	steps := []struct {
		state types.WorkerState
		fn    func() error
	}{
		{types.StateFDLeaderElection, w.electLeaders},
		{types.StatePreCkptNSRegister, w.preCkptNSRegister},
		{types.StatePreCkptNSQuery, w.preCkptNSQuery},
		{types.StateDrained, w.drain},
		{types.StateCheckpointed, w.doCheckpoint},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return err
		}
		w.state = step.state
		if err := w.ackState(step.state); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) stage3Refill(ctx context.Context) error {
	steps := []struct {
		state types.WorkerState
		fn    func() error
	}{
		{types.StateNameServiceDataRegistered, w.registerNSData},
		{types.StateDoneQuerying, w.sendQueries},
		{types.StateRefilled, w.refill},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return err
		}
		w.state = step.state
		if err := w.ackState(step.state); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) stage4Resume(ctx context.Context) error {
	msg, _, err := w.conn.Recv()
	if err != nil {
		return fmt.Errorf("worker: awaiting resume: %w", err)
	}
	if msg.Type != protocol.DMT_DO_RESUME {
		return fmt.Errorf("worker: expected DMT_DO_RESUME, got %s", msg.Type)
	}

	w.gate.ReleaseExclusive()
	if err := w.app.Resume(ctx); err != nil {
		return fmt.Errorf("worker: resuming application threads: %w", err)
	}

	w.state = types.StateRunning
	return w.ackState(types.StateRunning)
}

func (w *Worker) ackState(state types.WorkerState) error {
	ok := protocol.New(protocol.DMT_OK)
	ok.From = w.id
	ok.CompGroup = w.compGroup
	ok.State = state
	if err := w.conn.Send(ok, nil); err != nil {
		return fmt.Errorf("worker: sending ack for state %s: %w", state, err)
	}
	return nil
}

func (w *Worker) electLeaders() error {
	byResource := make(map[uint64][]*registry.Connection)
	for _, c := range w.registry.Connections() {
		if c.Inode == 0 {
			continue
		}
		byResource[c.Inode] = append(byResource[c.Inode], c)
	}
	for _, candidates := range byResource {
		registry.ElectLeaders(candidates)
	}
	return nil
}

func (w *Worker) preCkptNSRegister() error { return nil }
func (w *Worker) preCkptNSQuery() error    { return nil }

func (w *Worker) drain() error {
	return w.registry.Drain(noopDrainer{})
}

func (w *Worker) doCheckpoint() error {
	dir, err := checkpoint.PrepareDir(w.checkpointRoot, w.id)
	if err != nil {
		return err
	}
	if err := w.registry.PreCkpt(dir); err != nil {
		return err
	}
	if err := w.registry.Ckpt(w.copier, dir); err != nil {
		return err
	}
	if w.engine != nil {
		return w.engine.Dump(dir, checkpoint.ImageName("worker", w.id))
	}
	return nil
}

func (w *Worker) registerNSData() error { return nil }
func (w *Worker) sendQueries() error    { return nil }

func (w *Worker) refill() error {
	return w.registry.Refill(noopDrainer{})
}

// noopDrainer is the Drainer used when no real kernel-buffer drainer
// is wired in: draining and refilling are simply skipped, which is
// correct for any worker with no TCP connections under lock.
type noopDrainer struct{}

func (noopDrainer) Drain(*registry.Connection) ([]byte, error) { return nil, nil }
func (noopDrainer) Refill(*registry.Connection, []byte) error  { return nil }
