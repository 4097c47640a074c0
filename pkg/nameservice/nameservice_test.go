package nameservice

import (
	"testing"

	"github.com/pc2/dmtcp/pkg/storage"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func namespace(s string) [8]byte {
	var ns [8]byte
	copy(ns[:], s)
	return ns
}

func TestRegisterThenQuery(t *testing.T) {
	svc := newTestService(t)
	ns := namespace("restart1")

	_, ok, err := svc.Query(ns, []byte("peerA"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, svc.Register(ns, []byte("peerA"), []byte("10.0.0.5:4000")))

	value, ok, err := svc.Query(ns, []byte("peerA"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.5:4000", string(value))
}

func TestRegisterSyncVisibleImmediately(t *testing.T) {
	svc := newTestService(t)
	ns := namespace("restart1")

	require.NoError(t, svc.RegisterSync(ns, []byte("peerB"), []byte("10.0.0.6:4001")))

	value, ok, err := svc.Query(ns, []byte("peerB"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.6:4001", string(value))
}

func TestGetUniqueIDMonotonicPerNamespace(t *testing.T) {
	svc := newTestService(t)
	a := namespace("groupA")
	b := namespace("groupB")

	id1, err := svc.GetUniqueID(a)
	require.NoError(t, err)
	id2, err := svc.GetUniqueID(a)
	require.NoError(t, err)
	require.Equal(t, id1+1, id2)

	idB, err := svc.GetUniqueID(b)
	require.NoError(t, err)
	require.Equal(t, uint64(1), idB)
}

func TestResetClearsNamespace(t *testing.T) {
	svc := newTestService(t)
	ns := namespace("restart1")

	require.NoError(t, svc.Register(ns, []byte("k"), []byte("v")))
	require.NoError(t, svc.Reset(ns))

	_, ok, err := svc.Query(ns, []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}
