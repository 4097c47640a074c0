package coordinator

import (
	"context"
	"fmt"
	"sort"

	"github.com/pc2/dmtcp/pkg/link"
	"github.com/pc2/dmtcp/pkg/log"
	"github.com/pc2/dmtcp/pkg/protocol"
	"github.com/pc2/dmtcp/pkg/types"
)

// handleUserCmd answers one DMT_USER_CMD request on an already-open
// link and closes it; unlike a worker join, a command client never
// enters the Worker-Record table and never speaks again on this
// connection. This is the coordinator side of cmd/dmtcp-command.
func (o *Orchestrator) handleUserCmd(ctx context.Context, conn *link.Conn, msg *protocol.Message) {
	reply := protocol.New(protocol.DMT_USER_CMD_RESULT)
	reply.CoordCmd = msg.CoordCmd

	switch msg.CoordCmd {
	case protocol.CoordCmdQueryStatus:
		reply.CoordStatus = protocol.NoError
		reply.CoordTime = o.CoordTimestamp()
		reply.NumPeers = uint32(o.peerCount())

	case protocol.CoordCmdCheckpoint:
		if err := o.TriggerCycle(ctx); err != nil {
			log.Logger.Warn().Err(err).Msg("coordinator: checkpoint requested via dmtcp-command failed")
			reply.CoordStatus = protocol.ErrorNotRunningState
		} else {
			reply.CoordStatus = protocol.NoError
			reply.CoordTime = o.CoordTimestamp()
		}

	case protocol.CoordCmdSetInterval:
		// The value is stored and echoed back; nothing reads it, so the
		// periodic schedule from the --ckpt-interval flag is unchanged.
		o.mu.Lock()
		o.ckptInterval = msg.CkptInterval
		o.mu.Unlock()
		reply.CoordStatus = protocol.NoError
		reply.CkptInterval = msg.CkptInterval

	case protocol.CoordCmdListPeers:
		reply.CoordStatus = protocol.NoError
		reply.NumPeers = uint32(o.peerCount())

	case protocol.CoordCmdKill:
		o.killAll()
		reply.CoordStatus = protocol.NoError

	default:
		reply.CoordStatus = protocol.ErrorInvalidCommand
	}

	if err := conn.Send(reply, nil); err != nil {
		log.Logger.Warn().Err(err).Msg("coordinator: replying to user command")
	}
	conn.Close()
}

func (o *Orchestrator) peerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.workers)
}

// Peers returns a snapshot of every admitted worker's record, sorted
// by UniquePid. The "list-peers" user command reports only the count
// from peerCount, not this snapshot.
func (o *Orchestrator) Peers() []*types.WorkerRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*types.WorkerRecord, 0, len(o.workers))
	for _, wc := range o.workers {
		rec := *wc.record
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) < 0 })
	return out
}

func (o *Orchestrator) killAll() {
	o.mu.Lock()
	participants := make([]*workerConn, 0, len(o.workers))
	for _, wc := range o.workers {
		participants = append(participants, wc)
	}
	o.mu.Unlock()

	o.abortCycle(participants, fmt.Errorf("coordinator: kill requested via dmtcp-command"))
}
