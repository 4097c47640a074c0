// Package storage persists the durable state a coordinator needs
// across restarts: Name Service entries, the Worker-Record table (for
// HA handoff and crash recovery), and per-cycle checkpoint manifests.
package storage

import "github.com/pc2/dmtcp/pkg/types"

// Store is the persistence interface the coordinator depends on.
// BoltStore is the only production implementation; tests may swap in
// an in-memory fake.
type Store interface {
	// Name Service
	PutNameServiceEntry(namespace [8]byte, key, value []byte) error
	GetNameServiceEntry(namespace [8]byte, key []byte) ([]byte, bool, error)
	NextUniqueID(namespace [8]byte) (uint64, error)
	ClearNamespace(namespace [8]byte) error

	// Worker Records
	SaveWorkerRecord(rec *types.WorkerRecord) error
	GetWorkerRecord(id types.UniquePid) (*types.WorkerRecord, error)
	ListWorkerRecords() ([]*types.WorkerRecord, error)
	DeleteWorkerRecord(id types.UniquePid) error

	// Checkpoint manifests, keyed by an opaque cycle identifier
	SaveManifest(cycleID string, data []byte) error
	GetManifest(cycleID string) ([]byte, bool, error)
	ListManifests() ([]string, error)

	Close() error
}
