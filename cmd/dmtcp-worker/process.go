package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// childApplication adapts an os/exec child process to worker.Application:
// Suspend delivers the checkpoint signal and Resume delivers SIGCONT. The
// real DMTCP suspends every thread in-process via a signal handler that
// parks on a barrier; here the whole child process receives the one
// signal instead of a per-thread handshake, and Suspend does not wait
// for the child to stop.
type childApplication struct {
	cmd        *exec.Cmd
	ckptSignal os.Signal
}

func newChildApplication(cmd *exec.Cmd, ckptSignal int) *childApplication {
	return &childApplication{cmd: cmd, ckptSignal: syscall.Signal(ckptSignal)}
}

func (a *childApplication) Suspend(ctx context.Context) error {
	if err := a.cmd.Process.Signal(a.ckptSignal); err != nil {
		return fmt.Errorf("dmtcp-worker: signaling child to suspend: %w", err)
	}
	return nil
}

func (a *childApplication) Resume(ctx context.Context) error {
	if err := a.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("dmtcp-worker: signaling child to resume: %w", err)
	}
	return nil
}

// manifestEngine is the checkpoint.Engine wired into cmd/dmtcp-worker in
// place of a real memory-dumping engine, which would require a ptrace- or
// signal-handler-based capture of the child's address space. It records
// the child's pid and command line so a restarted worker has something to
// inspect, but does not capture process memory.
type manifestEngine struct {
	cmd *exec.Cmd
}

func (e *manifestEngine) Dump(dir, imageName string) error {
	data := fmt.Sprintf("pid=%d\nargv=%v\n", e.cmd.Process.Pid, e.cmd.Args)
	return os.WriteFile(filepath.Join(dir, imageName), []byte(data), 0600)
}

func (e *manifestEngine) Restore(dir, imageName string) error {
	_, err := os.ReadFile(filepath.Join(dir, imageName))
	return err
}
