package coordinator

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/pc2/dmtcp/pkg/storage"
	"github.com/pc2/dmtcp/pkg/types"
)

// Replicator gives a coordinator optional high availability: Worker
// Record admissions/removals and Name Service mutations are
// replicated via Raft across a group of standby coordinators, so one
// can take over a computation's barrier duties without forcing every
// worker to re-admit. A single-coordinator deployment never needs
// this; the Orchestrator's methods are no-ops without it.
type Replicator struct {
	raft    *raft.Raft
	fsm     *fsm
	localID string
}

// ReplicatorConfig names the local node and where its Raft log lives.
type ReplicatorConfig struct {
	LocalID  string
	BindAddr string
	DataDir  string
}

// NewReplicator creates a Replicator backed by store but does not yet
// join or bootstrap a cluster; call BootstrapWithAddr next, or have the
// current leader add this node with AddVoter.
func NewReplicator(cfg ReplicatorConfig, store storage.Store) (*Replicator, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("coordinator: creating raft data dir: %w", err)
	}

	f := newFSM(store)

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.LocalID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: resolving raft bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: creating raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("coordinator: creating raft snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: creating raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: creating raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, f, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("coordinator: creating raft instance: %w", err)
	}

	return &Replicator{raft: r, fsm: f, localID: cfg.LocalID}, nil
}

// BootstrapWithAddr forms a new single-node Raft cluster, advertising
// advertiseAddr as this node's Raft transport address.
func (rep *Replicator) BootstrapWithAddr(advertiseAddr string) error {
	config := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(rep.localID), Address: raft.ServerAddress(advertiseAddr)},
		},
	}
	future := rep.raft.BootstrapCluster(config)
	if err := future.Error(); err != nil {
		return fmt.Errorf("coordinator: bootstrapping raft cluster: %w", err)
	}
	return nil
}

// AddVoter adds another coordinator to the replication group. Only
// the current leader may call this successfully.
func (rep *Replicator) AddVoter(nodeID, address string) error {
	if !rep.IsLeader() {
		return fmt.Errorf("coordinator: not raft leader, current leader %s", rep.raft.Leader())
	}
	future := rep.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("coordinator: adding raft voter: %w", err)
	}
	return nil
}

// IsLeader reports whether this replica currently holds Raft
// leadership (and therefore owns the Barrier Orchestrator's writes).
func (rep *Replicator) IsLeader() bool {
	return rep.raft.State() == raft.Leader
}

// PeerCount returns the number of voters in the replication group.
func (rep *Replicator) PeerCount() int {
	future := rep.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return 0
	}
	return len(future.Configuration().Servers)
}

// ApplyWorkerJoined replicates a newly admitted worker's record.
func (rep *Replicator) ApplyWorkerJoined(rec *types.WorkerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("coordinator: marshal worker record: %w", err)
	}
	return rep.apply(opWorkerJoined, data)
}

// ApplyWorkerLeft replicates a worker's removal.
func (rep *Replicator) ApplyWorkerLeft(id types.UniquePid) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("coordinator: marshal worker id: %w", err)
	}
	return rep.apply(opWorkerLeft, data)
}

// ApplyNameServicePut replicates a Name Service write.
func (rep *Replicator) ApplyNameServicePut(namespace [8]byte, key, value []byte) error {
	data, err := json.Marshal(nameServicePutPayload{Namespace: namespace, Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("coordinator: marshal nameservice payload: %w", err)
	}
	return rep.apply(opNameServicePut, data)
}

func (rep *Replicator) apply(op string, data json.RawMessage) error {
	cmd := fsmCommand{Op: op, Data: data}
	encoded, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("coordinator: marshal fsm command: %w", err)
	}
	future := rep.raft.Apply(encoded, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("coordinator: applying raft command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if respErr, ok := resp.(error); ok && respErr != nil {
			return respErr
		}
	}
	return nil
}

// Shutdown stops the Raft instance.
func (rep *Replicator) Shutdown() error {
	future := rep.raft.Shutdown()
	if err := future.Error(); err != nil {
		return fmt.Errorf("coordinator: shutting down raft: %w", err)
	}
	return nil
}
