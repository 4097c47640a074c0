package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/pc2/dmtcp/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNameService   = []byte("nameservice")
	bucketNSCounters    = []byte("nameservice_counters")
	bucketWorkerRecords = []byte("worker_records")
	bucketManifests     = []byte("manifests")
)

// BoltStore implements Store using go.etcd.io/bbolt.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a BoltDB file under
// dataDir, pre-creating every bucket the Store interface needs.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "dmtcp-coordinator.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNameService, bucketNSCounters, bucketWorkerRecords, bucketManifests} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func nsEntryKey(namespace [8]byte, key []byte) []byte {
	return append(append([]byte{}, namespace[:]...), key...)
}

func (s *BoltStore) PutNameServiceEntry(namespace [8]byte, key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNameService)
		return b.Put(nsEntryKey(namespace, key), value)
	})
}

func (s *BoltStore) GetNameServiceEntry(namespace [8]byte, key []byte) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNameService)
		v := b.Get(nsEntryKey(namespace, key))
		if v != nil {
			value = append([]byte{}, v...)
		}
		return nil
	})
	return value, value != nil, err
}

func (s *BoltStore) NextUniqueID(namespace [8]byte) (uint64, error) {
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNSCounters)
		key := namespace[:]
		cur := uint64(0)
		if v := b.Get(key); v != nil {
			cur = binary.BigEndian.Uint64(v)
		}
		next = cur + 1
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)
		return b.Put(key, buf)
	})
	return next, err
}

func (s *BoltStore) ClearNamespace(namespace [8]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNameService)
		c := b.Cursor()
		prefix := namespace[:]
		var toDelete [][]byte
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte{}, k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		counters := tx.Bucket(bucketNSCounters)
		return counters.Delete(prefix)
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func workerRecordKey(id types.UniquePid) []byte {
	return []byte(id.String())
}

func (s *BoltStore) SaveWorkerRecord(rec *types.WorkerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal worker record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkerRecords)
		return b.Put(workerRecordKey(rec.ID), data)
	})
}

func (s *BoltStore) GetWorkerRecord(id types.UniquePid) (*types.WorkerRecord, error) {
	var rec types.WorkerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkerRecords)
		data := b.Get(workerRecordKey(id))
		if data == nil {
			return fmt.Errorf("storage: worker record not found: %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) ListWorkerRecords() ([]*types.WorkerRecord, error) {
	var recs []*types.WorkerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkerRecords)
		return b.ForEach(func(k, v []byte) error {
			var rec types.WorkerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, &rec)
			return nil
		})
	})
	return recs, err
}

func (s *BoltStore) DeleteWorkerRecord(id types.UniquePid) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkerRecords)
		return b.Delete(workerRecordKey(id))
	})
}

func (s *BoltStore) SaveManifest(cycleID string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		return b.Put([]byte(cycleID), data)
	})
}

func (s *BoltStore) GetManifest(cycleID string) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		v := b.Get([]byte(cycleID))
		if v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	return data, data != nil, err
}

func (s *BoltStore) ListManifests() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketManifests)
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}
