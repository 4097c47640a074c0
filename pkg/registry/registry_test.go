package registry

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pc2/dmtcp/pkg/types"
	"github.com/stretchr/testify/require"
)

func testWorker(pid int32) types.UniquePid {
	return types.UniquePid{HostID: 1, Pid: pid, StartTime: 100, Generation: 0}
}

func TestElectLeadersLowestIdentifierWins(t *testing.T) {
	a := &Connection{ID: Identifier{Owner: testWorker(2), Serial: 0}}
	b := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 5}}
	c := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 3}}

	leader := ElectLeaders([]*Connection{a, b, c})
	require.Same(t, c, leader)
	require.True(t, c.HasLock)
	require.False(t, a.HasLock)
	require.False(t, b.HasLock)
}

func TestElectLeadersEmpty(t *testing.T) {
	require.Nil(t, ElectLeaders(nil))
}

func TestRegisterAndConnectionsOrdering(t *testing.T) {
	r := New(testWorker(1))
	c2 := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 2}}
	c1 := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 1}}
	r.Register(c2)
	r.Register(c1)

	conns := r.Connections()
	require.Len(t, conns, 2)
	require.Equal(t, uint64(1), conns[0].ID.Serial)
	require.Equal(t, uint64(2), conns[1].ID.Serial)
}

type fakeDrainer struct {
	drained map[Identifier][]byte
	refilled map[Identifier][]byte
	drainErr error
}

func (f *fakeDrainer) Drain(conn *Connection) ([]byte, error) {
	if f.drainErr != nil {
		return nil, f.drainErr
	}
	return f.drained[conn.ID], nil
}

func (f *fakeDrainer) Refill(conn *Connection, data []byte) error {
	if f.refilled == nil {
		f.refilled = make(map[Identifier][]byte)
	}
	f.refilled[conn.ID] = data
	return nil
}

func TestDrainAndRefillRoundTrip(t *testing.T) {
	r := New(testWorker(1))
	conn := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 1}, Kind: KindTCP, HasLock: true}
	r.Register(conn)

	drainer := &fakeDrainer{drained: map[Identifier][]byte{conn.ID: []byte("buffered")}}
	require.NoError(t, r.Drain(drainer))
	require.Equal(t, []byte("buffered"), conn.drained)

	require.NoError(t, r.Refill(drainer))
	require.Equal(t, []byte("buffered"), drainer.refilled[conn.ID])
	require.Empty(t, conn.drained)
}

func TestDrainErrorDegradesConnectionWithoutFailingStage(t *testing.T) {
	r := New(testWorker(1))
	conn := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 1}, Kind: KindTCP, HasLock: true}
	r.Register(conn)

	drainer := &fakeDrainer{drainErr: bytes.ErrTooLarge}
	require.NoError(t, r.Drain(drainer))
	require.Equal(t, KindRaw, conn.Kind)
}

type fakeCopier struct {
	copied []string
}

func (f *fakeCopier) CopyToCheckpoint(conn *Connection, checkpointDir string) error {
	f.copied = append(f.copied, conn.Path)
	return nil
}

func TestCkptOnlyCopiesLeadCheckpointedFiles(t *testing.T) {
	r := New(testWorker(1))
	lead := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 1}, Kind: KindFile, HasLock: true, IsCheckpointed: true, Path: "/tmp/a"}
	notLead := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 2}, Kind: KindFile, HasLock: false, IsCheckpointed: true, Path: "/tmp/b"}
	notCkpt := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 3}, Kind: KindFile, HasLock: true, IsCheckpointed: false, Path: "/tmp/c"}
	r.Register(lead)
	r.Register(notLead)
	r.Register(notCkpt)

	copier := &fakeCopier{}
	require.NoError(t, r.Ckpt(copier, t.TempDir()))
	require.Equal(t, []string{"/tmp/a"}, copier.copied)
}

func TestPreCkptWritesFDInfo(t *testing.T) {
	r := New(testWorker(1))
	conn := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 1}, Kind: KindFile, HasLock: true, Path: "/tmp/a"}
	r.Register(conn)

	dir := t.TempDir()
	require.NoError(t, r.PreCkpt(dir))

	data, err := os.ReadFile(filepath.Join(dir, "fd-info.txt"))
	require.NoError(t, err)
	require.Contains(t, string(data), "/tmp/a")
}

func TestPostRestartReopensUnelectedPreExistingPTY(t *testing.T) {
	r := New(testWorker(1))
	pty := &Connection{ID: Identifier{Owner: testWorker(1), Serial: 1}, Kind: KindPTY, IsPreExisting: true, HasLock: false}
	r.Register(pty)

	reopen, _, _ := r.PostRestart()
	require.Len(t, reopen, 1)
	require.Same(t, pty, reopen[0])
}

func TestPostRestartShmAreaRemapVsDefer(t *testing.T) {
	r := New(testWorker(1))
	existingPath := filepath.Join(t.TempDir(), "backing")
	require.NoError(t, os.WriteFile(existingPath, []byte("x"), 0600))

	r.shmAreas = []*ShmArea{
		{Path: existingPath, Unlinked: true},
		{Path: "/nonexistent/backing", Unlinked: true},
		{Path: "/tmp/not-unlinked", Unlinked: false},
	}

	_, remap, deferred := r.PostRestart()
	require.Len(t, remap, 1)
	require.Equal(t, existingPath, remap[0].Path)
	require.Len(t, deferred, 1)
	require.True(t, deferred[0].deferredRestore)
}
