package registry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Drainer pulls bytes out of the kernel socket buffer of a TCP
// Connection so they can be saved in the image and pushed back on
// Refill. It is satisfied by a real socket in production and by a
// fake in tests.
type Drainer interface {
	Drain(conn *Connection) ([]byte, error)
	Refill(conn *Connection, data []byte) error
}

// FileCopier copies the bytes of a checkpointed FILE Connection into
// the checkpoint directory. Satisfied by the (external) dump engine.
type FileCopier interface {
	CopyToCheckpoint(conn *Connection, checkpointDir string) error
}

// Drain runs the DRAIN stage over every Connection this worker leads.
// Only TCP connections participate; a socket that errors mid-drain
// (peer reset) is replaced with a connection marked errored rather
// than closed, matching the "implicit close becomes a fresh broken
// socket" behavior of the kernel buffer drainer.
func (r *Registry) Drain(drainer Drainer) error {
	for _, c := range r.Connections() {
		if !c.HasLock || c.Kind != KindTCP {
			continue
		}
		data, err := drainer.Drain(c)
		if err != nil {
			c.Kind = KindRaw // treat as a broken socket, not closed
			continue
		}
		c.drained = data
	}
	return nil
}

// PreCkpt writes per-connection metadata needed to reconstruct the FD
// table at restart: which saved-file basename maps to which absolute
// path. Mirrors the original "fd-info.txt" sidecar.
func (r *Registry) PreCkpt(checkpointDir string) error {
	f, err := os.Create(checkpointDir + "/fd-info.txt")
	if err != nil {
		return fmt.Errorf("registry: writing fd-info: %w", err)
	}
	defer f.Close()

	for _, c := range r.Connections() {
		if !c.HasLock || c.Kind != KindFile {
			continue
		}
		if _, err := fmt.Fprintf(f, "%s:%s\n", filepath.Base(c.Path), c.Path); err != nil {
			return fmt.Errorf("registry: writing fd-info: %w", err)
		}
	}
	return nil
}

// Ckpt runs the CHECKPOINT stage: for every FILE Connection marked
// IsCheckpointed that this worker leads, copy its bytes into the
// checkpoint directory.
func (r *Registry) Ckpt(copier FileCopier, checkpointDir string) error {
	for _, c := range r.Connections() {
		if !c.HasLock || c.Kind != KindFile || !c.IsCheckpointed {
			continue
		}
		if err := copier.CopyToCheckpoint(c, checkpointDir); err != nil {
			return fmt.Errorf("registry: checkpointing %s: %w", c.Path, err)
		}
	}
	return nil
}

// Refill runs the REFILL stage on the checkpoint (non-restart) path:
// bytes drained in stage 2 are pushed back into the peer's send
// queue, and PTY terminal attributes are restored by the caller
// (restoring raw termios belongs to the OS-specific PTY layer, not
// this package).
func (r *Registry) Refill(drainer Drainer) error {
	for _, c := range r.Connections() {
		if !c.HasLock || c.Kind != KindTCP || len(c.drained) == 0 {
			continue
		}
		if err := drainer.Refill(c, c.drained); err != nil {
			return fmt.Errorf("registry: refilling %s: %w", c.ID, err)
		}
		c.drained = nil
	}
	return nil
}

// Resume remaps shared-memory regions that were blanked for the
// dump engine's benefit during CHECKPOINT. Actually performing the
// mmap is architecture-specific and left to the caller; Resume
// returns the set of areas needing it.
func (r *Registry) Resume() []*ShmArea {
	var pending []*ShmArea
	for _, area := range r.ShmAreas() {
		if !area.Unlinked {
			pending = append(pending, area)
		}
	}
	return pending
}

// PostRestart runs the restart-time fixups: pre-existing PTYs this
// worker could not elect leadership for are reopened locally, and
// unlinked shared-memory areas are scheduled for either remap (the
// backing path now exists again) or deferred recreation.
func (r *Registry) PostRestart() (reopenPTYs []*Connection, remap, defer_ []*ShmArea) {
	for _, c := range r.Connections() {
		if c.Kind == KindPTY && c.IsPreExisting && !c.HasLock {
			reopenPTYs = append(reopenPTYs, c)
		}
	}
	for _, area := range r.ShmAreas() {
		if !area.Unlinked {
			continue
		}
		if _, err := os.Stat(area.Path); err == nil {
			remap = append(remap, area)
		} else {
			area.deferredRestore = true
			defer_ = append(defer_, area)
		}
	}
	return reopenPTYs, remap, defer_
}

// RecreateDeferred implements the "recreate the backing file" branch
// of restart-time ShmArea recovery: O_CREAT|O_EXCL first, falling
// back to O_RDWR if the file reappeared, then writing the
// checkpointed page contents at area.Offset. The caller is
// responsible for the MAP_FIXED mmap and the post-barrier unlink.
func RecreateDeferred(area *ShmArea, pageData io.Reader) error {
	f, err := os.OpenFile(area.Path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if os.IsExist(err) {
		f, err = os.OpenFile(area.Path, os.O_RDWR, 0600)
	}
	if err != nil {
		return fmt.Errorf("registry: recreating shm backing file %s: %w", area.Path, err)
	}
	defer f.Close()

	if _, err := f.Seek(area.Offset, io.SeekStart); err != nil {
		return fmt.Errorf("registry: seeking shm backing file %s: %w", area.Path, err)
	}
	if _, err := io.Copy(f, pageData); err != nil {
		return fmt.Errorf("registry: writing shm page data %s: %w", area.Path, err)
	}
	return nil
}
