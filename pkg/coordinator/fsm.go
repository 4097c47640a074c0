package coordinator

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/pc2/dmtcp/pkg/storage"
	"github.com/pc2/dmtcp/pkg/types"
)

// fsmCommand is one Raft log entry: a mutation to either the
// Worker-Record table or the Name Service, replicated so a standby
// coordinator can take over mid-computation without re-admitting
// every worker.
type fsmCommand struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opWorkerJoined       = "worker_joined"
	opWorkerLeft         = "worker_left"
	opNameServicePut     = "nameservice_put"
	opNameServiceCleared = "nameservice_cleared"
)

type nameServicePutPayload struct {
	Namespace [8]byte `json:"namespace"`
	Key       []byte  `json:"key"`
	Value     []byte  `json:"value"`
}

// fsm applies replicated commands to the local storage.Store. It
// implements raft.FSM.
type fsm struct {
	mu    sync.RWMutex
	store storage.Store
}

func newFSM(store storage.Store) *fsm {
	return &fsm{store: store}
}

// Apply is called by Raft when a log entry is committed.
func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd fsmCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("coordinator: unmarshal fsm command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opWorkerJoined:
		var rec types.WorkerRecord
		if err := json.Unmarshal(cmd.Data, &rec); err != nil {
			return err
		}
		return f.store.SaveWorkerRecord(&rec)

	case opWorkerLeft:
		var id types.UniquePid
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeleteWorkerRecord(id)

	case opNameServicePut:
		var p nameServicePutPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.PutNameServiceEntry(p.Namespace, p.Key, p.Value)

	case opNameServiceCleared:
		var ns [8]byte
		if err := json.Unmarshal(cmd.Data, &ns); err != nil {
			return err
		}
		return f.store.ClearNamespace(ns)

	default:
		return fmt.Errorf("coordinator: unknown fsm command %q", cmd.Op)
	}
}

// Snapshot captures the replicated portion of the Worker-Record table
// for Raft's log compaction. Name Service state is intentionally
// excluded: it only matters for the restart group in progress, which
// does not survive a standby taking over anyway.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	records, err := f.store.ListWorkerRecords()
	if err != nil {
		return nil, fmt.Errorf("coordinator: listing worker records for snapshot: %w", err)
	}
	return &fsmSnapshot{records: records}, nil
}

// Restore replaces local Worker-Record state with a snapshot taken on
// another coordinator.
func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshotData
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("coordinator: decoding fsm snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range snap.Records {
		if err := f.store.SaveWorkerRecord(rec); err != nil {
			return fmt.Errorf("coordinator: restoring worker record: %w", err)
		}
	}
	return nil
}

type fsmSnapshotData struct {
	Records []*types.WorkerRecord `json:"records"`
}

type fsmSnapshot struct {
	records []*types.WorkerRecord
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		return json.NewEncoder(sink).Encode(fsmSnapshotData{Records: s.records})
	}()
	if err != nil {
		sink.Cancel()
		return fmt.Errorf("coordinator: persisting fsm snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
