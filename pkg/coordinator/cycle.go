package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/pc2/dmtcp/pkg/events"
	"github.com/pc2/dmtcp/pkg/log"
	"github.com/pc2/dmtcp/pkg/protocol"
	"github.com/pc2/dmtcp/pkg/types"
)

// TriggerCycle drives every currently admitted worker through
// checkpointStages in order. A stage completes only once every
// worker has reported DMT_OK with exactly the awaited WorkerState; a
// worker still at an earlier state is pending, one at a later state
// is a protocol violation and aborts the whole cycle. coordTimeStamp
// advances exactly once, after the final stage succeeds.
func (o *Orchestrator) TriggerCycle(ctx context.Context) error {
	o.mu.Lock()
	if o.cycleActive {
		o.mu.Unlock()
		return fmt.Errorf("coordinator: cycle already in progress")
	}
	o.cycleActive = true
	participants := make([]*workerConn, 0, len(o.workers))
	for _, wc := range o.workers {
		participants = append(participants, wc)
	}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.cycleActive = false
		o.mu.Unlock()
	}()

	if o.events != nil {
		o.events.Publish(&events.Event{Type: events.EventCycleStarted})
	}

	coordTime := o.CoordTimestamp()

	for _, st := range checkpointStages {
		if err := o.runStage(ctx, participants, st, coordTime); err != nil {
			o.abortCycle(participants, err)
			return err
		}
		if o.events != nil {
			o.events.Publish(&events.Event{Type: events.EventCycleStage, Message: st.name})
		}
	}

	o.mu.Lock()
	o.coordTime++
	o.mu.Unlock()

	if o.events != nil {
		o.events.Publish(&events.Event{Type: events.EventCycleCompleted})
	}
	return nil
}

// runStage broadcasts st.command to every participant and blocks
// until each has acked st.awaited, the StageTimeout elapses, or a
// link reports a protocol violation (a later-than-expected state).
func (o *Orchestrator) runStage(ctx context.Context, participants []*workerConn, st stage, coordTime int64) error {
	for _, wc := range participants {
		msg := protocol.New(st.command)
		msg.CoordTime = coordTime
		msg.CompGroup = o.compGroup
		if err := wc.conn.Send(msg, nil); err != nil {
			return fmt.Errorf("coordinator: broadcasting %s to %s: %w", st.name, wc.record.ID, err)
		}
	}

	deadline := time.Now().Add(o.StageTimeout)
	for {
		pending := 0
		for _, wc := range participants {
			wc.mu.Lock()
			acked := wc.lastAcked
			wc.mu.Unlock()

			switch {
			case acked == st.awaited:
				// done
			case st.awaited == types.StateRunning:
				// DMT_DO_RESUME resets state back to RUNNING; any
				// pre-reset state just means the ack hasn't arrived yet.
				pending++
			case stateRank(acked) < stateRank(st.awaited):
				pending++
			default:
				return fmt.Errorf("coordinator: worker %s reported unexpected state %s during stage %s", wc.record.ID, acked, st.name)
			}
		}
		if pending == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("coordinator: stage %s timed out waiting for %d worker(s)", st.name, pending)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// abortCycle broadcasts DMT_KILL_PEER to every participant still
// connected and logs the failure; workers receiving it exit
// unconditionally with status 0.
func (o *Orchestrator) abortCycle(participants []*workerConn, cause error) {
	log.Logger.Error().Err(cause).Msg("coordinator: aborting cycle")

	kill := protocol.New(protocol.DMT_KILL_PEER)
	for _, wc := range participants {
		_ = wc.conn.Send(kill, nil)
	}

	if o.events != nil {
		o.events.Publish(&events.Event{Type: events.EventCycleAborted, Message: cause.Error()})
	}
}

// stateRank gives checkpointStages' awaited states a total order so
// runStage can distinguish "not there yet" from "protocol violation".
var stateOrder = map[types.WorkerState]int{
	types.StateRunning:                   0,
	types.StateSuspended:                 1,
	types.StateFDLeaderElection:          2,
	types.StatePreCkptNSRegister:         3,
	types.StatePreCkptNSQuery:            4,
	types.StateDrained:                   5,
	types.StateCheckpointed:              6,
	types.StateNameServiceDataRegistered: 7,
	types.StateDoneQuerying:              8,
	types.StateRefilled:                  9,
}

func stateRank(s types.WorkerState) int {
	return stateOrder[s]
}

// CoordTimestamp returns the coordinator's current cycle counter.
func (o *Orchestrator) CoordTimestamp() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.coordTime
}

// WorkerStateCounts implements metrics.Source.
func (o *Orchestrator) WorkerStateCounts() map[types.WorkerState]int {
	o.mu.Lock()
	defer o.mu.Unlock()

	counts := make(map[types.WorkerState]int)
	for _, wc := range o.workers {
		wc.mu.Lock()
		counts[wc.lastAcked]++
		wc.mu.Unlock()
	}
	return counts
}

// IsRaftLeader implements metrics.Source.
func (o *Orchestrator) IsRaftLeader() bool {
	if o.replicator == nil {
		return true
	}
	return o.replicator.IsLeader()
}

// RaftPeerCount implements metrics.Source.
func (o *Orchestrator) RaftPeerCount() int {
	if o.replicator == nil {
		return 0
	}
	return o.replicator.PeerCount()
}
