// Package nameservice implements the coordinator-resident key/value
// registry workers use at restart to rendezvous socket peers:
// REGISTER_NAME_SERVICE_DATA (put), NAME_SERVICE_QUERY (get), and
// NAME_SERVICE_GET_UNIQUE_ID (allocate a monotonically increasing
// 64-bit id within a namespace).
package nameservice

import (
	"fmt"
	"sync"

	"github.com/pc2/dmtcp/pkg/storage"
)

// Service answers Name Service requests against a storage.Store. One
// Service instance is shared by every worker link on a coordinator.
type Service struct {
	store storage.Store

	// syncMu serializes REGISTER_NAME_SERVICE_DATA_SYNC's put-then-read
	// guarantee against concurrent queries in the same namespace.
	syncMu sync.Mutex
}

// New returns a Service backed by store.
func New(store storage.Store) *Service {
	return &Service{store: store}
}

// Register handles REGISTER_NAME_SERVICE_DATA: publish value under key
// in namespace.
func (s *Service) Register(namespace [8]byte, key, value []byte) error {
	if err := s.store.PutNameServiceEntry(namespace, key, value); err != nil {
		return fmt.Errorf("nameservice: register %q: %w", key, err)
	}
	return nil
}

// RegisterSync handles REGISTER_NAME_SERVICE_DATA_SYNC: the same
// put as Register, but under a lock that also serializes against
// Query, so a caller that waits for the SYNC response is guaranteed
// any subsequent Query by a peer observes this write.
func (s *Service) RegisterSync(namespace [8]byte, key, value []byte) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.Register(namespace, key, value)
}

// Query handles NAME_SERVICE_QUERY: look up key in namespace. ok is
// false if no value has been registered yet.
func (s *Service) Query(namespace [8]byte, key []byte) (value []byte, ok bool, err error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	value, ok, err = s.store.GetNameServiceEntry(namespace, key)
	if err != nil {
		return nil, false, fmt.Errorf("nameservice: query %q: %w", key, err)
	}
	return value, ok, nil
}

// GetUniqueID handles NAME_SERVICE_GET_UNIQUE_ID: allocate the next
// id in the monotonically increasing sequence for namespace, starting
// at 1.
func (s *Service) GetUniqueID(namespace [8]byte) (uint64, error) {
	id, err := s.store.NextUniqueID(namespace)
	if err != nil {
		return 0, fmt.Errorf("nameservice: get unique id: %w", err)
	}
	return id, nil
}

// Reset clears every entry and counter registered under namespace.
// pkg/coordinator does not call it.
func (s *Service) Reset(namespace [8]byte) error {
	if err := s.store.ClearNamespace(namespace); err != nil {
		return fmt.Errorf("nameservice: reset namespace: %w", err)
	}
	return nil
}
