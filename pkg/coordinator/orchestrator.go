// Package coordinator implements the coordinator side of the
// barrier protocol: worker admission, the Worker-Record table, and
// the Barrier Orchestrator that drives every admitted worker through
// the ordered checkpoint stages.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pc2/dmtcp/pkg/events"
	"github.com/pc2/dmtcp/pkg/link"
	"github.com/pc2/dmtcp/pkg/log"
	"github.com/pc2/dmtcp/pkg/nameservice"
	"github.com/pc2/dmtcp/pkg/protocol"
	"github.com/pc2/dmtcp/pkg/storage"
	"github.com/pc2/dmtcp/pkg/types"
)

// stage describes one step of the checkpoint barrier: the command
// broadcast to every worker and the WorkerState every worker must
// report back via DMT_OK before the Orchestrator advances.
type stage struct {
	name     string
	command  protocol.MessageType
	awaited  types.WorkerState
}

// checkpointStages is the fixed sequence §4.4 names for stages 2-4.
// Stage 1 (await SUSPEND) is folded in as the first entry so the
// whole cycle is one linear walk.
var checkpointStages = []stage{
	{"suspend", protocol.DMT_DO_SUSPEND, types.StateSuspended},
	{"fd-leader-election", protocol.DMT_DO_FD_LEADER_ELECTION, types.StateFDLeaderElection},
	{"pre-ckpt-ns-register", protocol.DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_REGISTER, types.StatePreCkptNSRegister},
	{"pre-ckpt-ns-query", protocol.DMT_DO_PRE_CKPT_NAME_SERVICE_DATA_QUERY, types.StatePreCkptNSQuery},
	{"drain", protocol.DMT_DO_DRAIN, types.StateDrained},
	{"checkpoint", protocol.DMT_DO_CHECKPOINT, types.StateCheckpointed},
	{"register-ns-data", protocol.DMT_DO_REGISTER_NAME_SERVICE_DATA, types.StateNameServiceDataRegistered},
	{"send-queries", protocol.DMT_DO_SEND_QUERIES, types.StateDoneQuerying},
	{"refill", protocol.DMT_DO_REFILL, types.StateRefilled},
	{"resume", protocol.DMT_DO_RESUME, types.StateRunning},
}

// workerConn is the coordinator's per-worker bookkeeping: the link,
// the durable record, and the most recent WorkerState reported.
type workerConn struct {
	conn   *link.Conn
	record *types.WorkerRecord

	mu        sync.Mutex
	lastAcked types.WorkerState
}

// ErrNoCycleInProgress reports that no checkpoint cycle is running. No
// function in this package returns it.
var ErrNoCycleInProgress = fmt.Errorf("coordinator: no cycle in progress")

// Orchestrator is the coordinator-side barrier driver. One
// Orchestrator serves exactly one computation group's coordinator
// link at a time; a deployment runs one per listening port.
type Orchestrator struct {
	store       storage.Store
	nameservice *nameservice.Service
	events      *events.Broker
	replicator  *Replicator // nil unless HA is enabled

	// StageTimeout bounds how long the Orchestrator waits for every
	// admitted worker to ack one stage before it aborts the cycle.
	StageTimeout time.Duration

	mu            sync.Mutex
	compGroup     types.UniquePid
	workers       map[types.UniquePid]*workerConn
	coordTime     int64
	cycleActive   bool
	ckptInterval  uint32
}

// New returns an Orchestrator for one computation group, persisting
// Worker Records and Name Service state through store.
func New(store storage.Store, broker *events.Broker) *Orchestrator {
	return &Orchestrator{
		store:        store,
		nameservice:  nameservice.New(store),
		events:       broker,
		StageTimeout: 30 * time.Second,
		workers:      make(map[types.UniquePid]*workerConn),
		ckptInterval: 0,
	}
}

// WithReplicator enables Raft-backed replication of admission and
// Name Service state across standby coordinators.
func (o *Orchestrator) WithReplicator(r *Replicator) *Orchestrator {
	o.replicator = r
	return o
}

// Serve accepts worker links from ln until ctx is cancelled.
func (o *Orchestrator) Serve(ctx context.Context, ln *link.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("coordinator: accept: %w", err)
			}
		}
		go o.handleNewLink(ctx, conn)
	}
}

// handleNewLink performs admission for one freshly-accepted link,
// then, if admitted, runs the receive loop that feeds barrier acks
// until the link closes.
func (o *Orchestrator) handleNewLink(ctx context.Context, conn *link.Conn) {
	msg, _, err := conn.Recv()
	if err != nil {
		log.Logger.Warn().Err(err).Msg("coordinator: reading admission message")
		conn.Close()
		return
	}

	if msg.Type == protocol.DMT_USER_CMD {
		o.handleUserCmd(ctx, conn, msg)
		return
	}

	wc, reject := o.admit(msg, conn)
	if reject != protocol.DMT_ACCEPT {
		reply := protocol.New(reject)
		_ = conn.Send(reply, nil)
		conn.Close()
		return
	}

	accept := protocol.New(protocol.DMT_ACCEPT)
	accept.CoordTime = o.CoordTimestamp()
	if err := conn.Send(accept, nil); err != nil {
		o.removeWorker(wc.record.ID)
		conn.Close()
		return
	}

	if o.events != nil {
		o.events.Publish(&events.Event{Type: events.EventWorkerJoined, Message: wc.record.ID.String()})
	}

	o.recvLoop(ctx, wc)
}

// admit validates a DMT_NEW_WORKER/DMT_RESTART_WORKER request against
// the current phase and computation-group membership, then registers
// the worker record. There is no token-based authentication: a worker
// is admitted purely on message type plus a matching (or first-seen)
// computation-group id.
func (o *Orchestrator) admit(msg *protocol.Message, conn *link.Conn) (*workerConn, protocol.MessageType) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if msg.Type != protocol.DMT_NEW_WORKER && msg.Type != protocol.DMT_RESTART_WORKER {
		return nil, protocol.DMT_REJECT_NOT_RUNNING
	}
	if o.cycleActive {
		return nil, protocol.DMT_REJECT_NOT_RUNNING
	}
	if o.compGroup.IsZero() {
		o.compGroup = msg.CompGroup
	} else if o.compGroup.Compare(msg.CompGroup) != 0 {
		return nil, protocol.DMT_REJECT_WRONG_COMP
	}

	now := time.Now()
	rec := &types.WorkerRecord{
		ID:             msg.From,
		CompGroup:      msg.CompGroup,
		State:          types.StateRunning,
		CountsToQuorum: true,
		JoinedAt:       now,
		LastSeen:       now,
	}
	if err := o.store.SaveWorkerRecord(rec); err != nil {
		log.Logger.Error().Err(err).Msg("coordinator: persisting worker record")
	}
	if o.replicator != nil {
		if err := o.replicator.ApplyWorkerJoined(rec); err != nil {
			log.Logger.Warn().Err(err).Msg("coordinator: replicating worker join")
		}
	}

	wc := &workerConn{conn: conn, record: rec, lastAcked: types.StateRunning}
	o.workers[rec.ID] = wc
	return wc, protocol.DMT_ACCEPT
}

func (o *Orchestrator) removeWorker(id types.UniquePid) {
	o.mu.Lock()
	delete(o.workers, id)
	o.mu.Unlock()

	if err := o.store.DeleteWorkerRecord(id); err != nil {
		log.Logger.Warn().Err(err).Msg("coordinator: removing worker record")
	}
	if o.replicator != nil {
		if err := o.replicator.ApplyWorkerLeft(id); err != nil {
			log.Logger.Warn().Err(err).Msg("coordinator: replicating worker removal")
		}
	}
	if o.events != nil {
		o.events.Publish(&events.Event{Type: events.EventWorkerLeft, Message: id.String()})
	}
}

// recvLoop reads DMT_OK acks (and incidental Name Service traffic)
// from one worker link until it closes or ctx is cancelled.
func (o *Orchestrator) recvLoop(ctx context.Context, wc *workerConn) {
	defer wc.conn.Close()
	defer o.removeWorker(wc.record.ID)

	for {
		msg, payload, err := wc.conn.Recv()
		if err != nil {
			return
		}
		o.handleMessage(wc, msg, payload)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (o *Orchestrator) handleMessage(wc *workerConn, msg *protocol.Message, payload []byte) {
	switch msg.Type {
	case protocol.DMT_OK:
		wc.mu.Lock()
		wc.lastAcked = msg.State
		wc.mu.Unlock()
	case protocol.DMT_REGISTER_NAME_SERVICE_DATA, protocol.DMT_REGISTER_NAME_SERVICE_DATA_SYNC:
		key := payload[:msg.KeyLen]
		value := payload[msg.KeyLen : msg.KeyLen+msg.ValLen]
		if err := o.nameservice.Register(msg.NSID, key, value); err != nil {
			log.Logger.Error().Err(err).Msg("coordinator: name service register")
			return
		}
		if o.replicator != nil {
			if err := o.replicator.ApplyNameServicePut(msg.NSID, key, value); err != nil {
				log.Logger.Warn().Err(err).Msg("coordinator: replicating name service write")
			}
		}
		if msg.Type == protocol.DMT_REGISTER_NAME_SERVICE_DATA_SYNC {
			reply := protocol.New(protocol.DMT_REGISTER_NAME_SERVICE_DATA_SYNC_RESPONSE)
			_ = wc.conn.Send(reply, nil)
		}
	case protocol.DMT_NAME_SERVICE_QUERY:
		key := payload[:msg.KeyLen]
		value, ok, err := o.nameservice.Query(msg.NSID, key)
		if err != nil {
			log.Logger.Error().Err(err).Msg("coordinator: name service query")
			return
		}
		reply := protocol.New(protocol.DMT_NAME_SERVICE_QUERY_RESPONSE)
		reply.NSID = msg.NSID
		reply.KeyLen = uint32(len(key))
		if ok {
			reply.ValLen = uint32(len(value))
		}
		body := append(append([]byte{}, key...), value...)
		reply.ExtraBytes = uint32(len(body))
		_ = wc.conn.Send(reply, body)
	case protocol.DMT_NAME_SERVICE_GET_UNIQUE_ID:
		id, err := o.nameservice.GetUniqueID(msg.NSID)
		if err != nil {
			log.Logger.Error().Err(err).Msg("coordinator: name service get unique id")
			return
		}
		reply := protocol.New(protocol.DMT_NAME_SERVICE_GET_UNIQUE_ID_RESPONSE)
		reply.NSID = msg.NSID
		reply.UniqueIDOffset = uint32(id)
		_ = wc.conn.Send(reply, nil)
	}
}
