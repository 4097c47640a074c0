package storage

import (
	"testing"

	"github.com/pc2/dmtcp/pkg/types"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNameServiceEntryRoundTrip(t *testing.T) {
	store := openTestStore(t)
	var ns [8]byte
	copy(ns[:], "default")

	_, ok, err := store.GetNameServiceEntry(ns, []byte("alice"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.PutNameServiceEntry(ns, []byte("alice"), []byte("10.0.0.1:9000")))

	value, ok, err := store.GetNameServiceEntry(ns, []byte("alice"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.1:9000", string(value))
}

func TestClearNamespaceOnlyAffectsThatNamespace(t *testing.T) {
	store := openTestStore(t)
	var a, b [8]byte
	copy(a[:], "groupA")
	copy(b[:], "groupB")

	require.NoError(t, store.PutNameServiceEntry(a, []byte("k"), []byte("v1")))
	require.NoError(t, store.PutNameServiceEntry(b, []byte("k"), []byte("v2")))
	_, err := store.NextUniqueID(a)
	require.NoError(t, err)

	require.NoError(t, store.ClearNamespace(a))

	_, ok, err := store.GetNameServiceEntry(a, []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	value, ok, err := store.GetNameServiceEntry(b, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(value))

	id, err := store.NextUniqueID(a)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}

func TestNextUniqueIDIncrementsPerNamespace(t *testing.T) {
	store := openTestStore(t)
	var ns [8]byte
	copy(ns[:], "ckpt")

	for want := uint64(1); want <= 3; want++ {
		got, err := store.NextUniqueID(ns)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestWorkerRecordCRUD(t *testing.T) {
	store := openTestStore(t)
	id := types.UniquePid{HostID: 1, Pid: 100, StartTime: 5, Generation: 0}
	rec := &types.WorkerRecord{
		ID:            id,
		CompGroup:     id,
		State:         types.StateRunning,
		CheckpointDir: "/tmp/ckpt",
	}

	require.NoError(t, store.SaveWorkerRecord(rec))

	got, err := store.GetWorkerRecord(id)
	require.NoError(t, err)
	require.Equal(t, rec.State, got.State)
	require.Equal(t, rec.CheckpointDir, got.CheckpointDir)

	all, err := store.ListWorkerRecords()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, store.DeleteWorkerRecord(id))
	_, err = store.GetWorkerRecord(id)
	require.Error(t, err)
}

func TestManifestRoundTrip(t *testing.T) {
	store := openTestStore(t)

	ids, err := store.ListManifests()
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, store.SaveManifest("cycle-1", []byte("manifest-bytes")))

	data, ok, err := store.GetManifest("cycle-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "manifest-bytes", string(data))

	ids, err = store.ListManifests()
	require.NoError(t, err)
	require.Equal(t, []string{"cycle-1"}, ids)
}
