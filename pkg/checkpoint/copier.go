package checkpoint

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pc2/dmtcp/pkg/registry"
)

// FileCopier implements registry.FileCopier by copying a checkpointed
// FILE Connection's bytes into <checkpointDir>/files/<basename>.
type FileCopier struct{}

// CopyToCheckpoint copies conn.Path into checkpointDir/files.
func (FileCopier) CopyToCheckpoint(conn *registry.Connection, checkpointDir string) error {
	src, err := os.Open(conn.Path)
	if err != nil {
		return fmt.Errorf("checkpoint: opening %s: %w", conn.Path, err)
	}
	defer src.Close()

	dstPath := filepath.Join(checkpointDir, FilesSubdir, filepath.Base(conn.Path))
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("checkpoint: creating %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("checkpoint: copying %s: %w", conn.Path, err)
	}
	return nil
}
