package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pc2/dmtcp/pkg/config"
	"github.com/pc2/dmtcp/pkg/log"
	"github.com/pc2/dmtcp/pkg/worker"
)

func runWorker(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	flagHost, _ := flags.GetString("coord-host")
	flagPort, _ := flags.GetInt("coord-port")
	restart, _ := flags.GetBool("restart")
	checkpointDir, _ := flags.GetString("checkpoint-dir")
	ckptSignalFlag, _ := flags.GetInt("ckpt-signal")

	log.Init(log.Config{Level: log.QuietLevel(config.QuietLevel()), JSONOutput: true})

	if checkpointDir == "" {
		dir, err := config.TmpDir()
		if err != nil {
			return fmt.Errorf("dmtcp-worker: resolving checkpoint directory: %w", err)
		}
		checkpointDir = dir
	}

	ckptSignal := config.CkptSignal()
	if ckptSignalFlag != 0 {
		ckptSignal = ckptSignalFlag
	}

	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	if err := child.Start(); err != nil {
		return fmt.Errorf("dmtcp-worker: launching %s: %w", args[0], err)
	}

	id := thisProcess()
	compGroup := id // the launching worker is its own computation-group root

	w := worker.New(worker.Config{
		ID:             id,
		CompGroup:      compGroup,
		App:            newChildApplication(child, ckptSignal),
		Engine:         &manifestEngine{cmd: child},
		CheckpointRoot: checkpointDir,
	})
	if err := w.Registry().Discover(-1); err != nil {
		log.Logger.Warn().Err(err).Msg("dmtcp-worker: discovering open resources")
	}

	host, port := config.CoordHostAndPort(flagHost, flagPort)
	addr := fmt.Sprintf("%s:%d", host, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Connect(ctx, "tcp", addr, restart); err != nil {
		_ = child.Process.Kill()
		return fmt.Errorf("dmtcp-worker: %w", err)
	}
	log.Logger.Info().Str("worker", id.String()).Str("coordinator", addr).Msg("dmtcp-worker: admitted")

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- w.Run(ctx) }()

	childExitCh := make(chan error, 1)
	go func() { childExitCh <- child.Wait() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("dmtcp-worker: shutdown signal received")
		w.Stop()
		_ = child.Process.Kill()
	case err := <-runErrCh:
		if err != nil {
			log.Logger.Error().Err(err).Msg("dmtcp-worker: checkpoint loop exited")
		}
		_ = child.Process.Kill()
	case err := <-childExitCh:
		w.Stop()
		return err
	}

	return nil
}
