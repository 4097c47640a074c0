package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pc2/dmtcp/pkg/registry"
	"github.com/pc2/dmtcp/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestImageName(t *testing.T) {
	id := types.UniquePid{HostID: 1, Pid: 42, StartTime: 9, Generation: 0}
	require.Equal(t, "ckpt_sh_1-42-9-0.dmtcp", ImageName("sh", id))
}

func TestManifestRoundTrip(t *testing.T) {
	id := types.UniquePid{HostID: 1, Pid: 42, StartTime: 9, Generation: 0}
	m := &Manifest{
		CycleID:       "cycle-1",
		Worker:        id,
		CompGroup:     id,
		CheckpointDir: "/tmp/ckpt",
		ImageFile:     ImageName("sh", id),
		CreatedAt:     time.Unix(1700000000, 0).UTC(),
	}

	data, err := m.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, m.CycleID, got.CycleID)
	require.Equal(t, m.Worker, got.Worker)
	require.Equal(t, m.ImageFile, got.ImageFile)
}

func TestPrepareDirCreatesFilesSubdir(t *testing.T) {
	id := types.UniquePid{HostID: 1, Pid: 42, StartTime: 9, Generation: 0}
	dir, err := PrepareDir(t.TempDir(), id)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, FilesSubdir))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestFileCopierCopiesIntoFilesSubdir(t *testing.T) {
	root := t.TempDir()
	srcPath := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("payload"), 0600))

	id := types.UniquePid{HostID: 1, Pid: 1, StartTime: 1, Generation: 0}
	dir, err := PrepareDir(root, id)
	require.NoError(t, err)

	conn := &registry.Connection{Path: srcPath}
	copier := FileCopier{}
	require.NoError(t, copier.CopyToCheckpoint(conn, dir))

	data, err := os.ReadFile(filepath.Join(dir, FilesSubdir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}
