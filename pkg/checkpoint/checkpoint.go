// Package checkpoint defines the on-disk layout a checkpoint cycle
// produces and the narrow interface through which the CKPT goroutine
// calls the external memory-dumping engine. Writing process memory to
// disk and restoring it are explicitly out of scope (see the package
// this was distilled from); Engine is the seam a real dump engine
// plugs into.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pc2/dmtcp/pkg/types"
)

// ImageName returns the conventional image filename for a checkpoint:
// ckpt_<progname>_<uniquepid>.dmtcp.
func ImageName(progname string, id types.UniquePid) string {
	return fmt.Sprintf("ckpt_%s_%s.dmtcp", progname, id)
}

// FilesSubdir is where regular files elected "checkpointed" are
// copied, named by their saved basename.
const FilesSubdir = "files"

// FDInfoName is the sidecar mapping saved-file basenames to their
// original absolute paths.
const FDInfoName = "fd-info.txt"

// Manifest records what one worker's checkpoint cycle produced. The
// coordinator's admission logic does not read manifests.
type Manifest struct {
	CycleID       string          `json:"cycleId"`
	Worker        types.UniquePid `json:"worker"`
	CompGroup     types.UniquePid `json:"compGroup"`
	CheckpointDir string          `json:"checkpointDir"`
	ImageFile     string          `json:"imageFile"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Marshal serializes m for storage.Store.SaveManifest.
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: marshal manifest: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a manifest previously written by Marshal.
func Unmarshal(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Engine is the external memory-dumping/restoring capability. The
// CKPT goroutine calls Dump at the CHECKPOINT stage; pkg/worker does
// not call Restore. cmd/dmtcp-worker wires an engine that records the
// child's pid and command line without capturing memory; tests wire a
// fake that records calls.
type Engine interface {
	// Dump writes the process image to dir/imageName.
	Dump(dir, imageName string) error
	// Restore reads the process image back from dir/imageName. Never
	// called in-process in this codebase's tests; present so the
	// worker package can depend on the interface rather than a
	// concrete engine.
	Restore(dir, imageName string) error
}

// PrepareDir ensures the checkpoint directory and its files/
// subdirectory exist, returning the directory path.
func PrepareDir(root string, id types.UniquePid) (string, error) {
	dir := filepath.Join(root, fmt.Sprintf("ckpt-%s", id))
	if err := os.MkdirAll(filepath.Join(dir, FilesSubdir), 0700); err != nil {
		return "", fmt.Errorf("checkpoint: preparing directory: %w", err)
	}
	return dir, nil
}
