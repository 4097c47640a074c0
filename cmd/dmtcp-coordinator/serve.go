package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pc2/dmtcp/pkg/config"
	"github.com/pc2/dmtcp/pkg/coordinator"
	"github.com/pc2/dmtcp/pkg/events"
	"github.com/pc2/dmtcp/pkg/link"
	"github.com/pc2/dmtcp/pkg/log"
	"github.com/pc2/dmtcp/pkg/metrics"
	"github.com/pc2/dmtcp/pkg/storage"
)

func runCoordinator(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	flagHost, _ := flags.GetString("host")
	flagPort, _ := flags.GetInt("port")
	dataDir, _ := flags.GetString("data-dir")
	metricsAddr, _ := flags.GetString("metrics-addr")
	stageTimeout, _ := flags.GetDuration("stage-timeout")
	ckptInterval, _ := flags.GetDuration("ckpt-interval")

	haEnable, _ := flags.GetBool("ha-enable")
	haLocalID, _ := flags.GetString("ha-local-id")
	haBindAddr, _ := flags.GetString("ha-bind-addr")
	haDataDir, _ := flags.GetString("ha-data-dir")
	haBootstrap, _ := flags.GetBool("ha-bootstrap")

	log.Init(log.Config{Level: log.QuietLevel(config.QuietLevel()), JSONOutput: true})

	host, port := config.CoordHostAndPort(flagHost, flagPort)

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("dmtcp-coordinator: opening store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("storage", true, "")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	orch := coordinator.New(store, broker)
	if stageTimeout > 0 {
		orch.StageTimeout = stageTimeout
	}
	metrics.RegisterComponent("nameservice", true, "")

	var replicator *coordinator.Replicator
	if haEnable {
		if haLocalID == "" {
			return fmt.Errorf("dmtcp-coordinator: --ha-local-id is required with --ha-enable")
		}
		replicator, err = coordinator.NewReplicator(coordinator.ReplicatorConfig{
			LocalID:  haLocalID,
			BindAddr: haBindAddr,
			DataDir:  haDataDir,
		}, store)
		if err != nil {
			return fmt.Errorf("dmtcp-coordinator: starting replicator: %w", err)
		}
		defer replicator.Shutdown()

		if haBootstrap {
			if err := replicator.BootstrapWithAddr(haBindAddr); err != nil {
				return fmt.Errorf("dmtcp-coordinator: bootstrapping raft cluster: %w", err)
			}
		}
		orch.WithReplicator(replicator)
	}

	collector := metrics.NewCollector(orch)
	collector.Start()
	defer collector.Stop()

	ln, err := link.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("dmtcp-coordinator: listening: %w", err)
	}
	defer ln.Close()
	metrics.RegisterComponent("coordinator-link", true, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- orch.Serve(ctx, ln)
	}()

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsMux()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Warn().Err(err).Msg("dmtcp-coordinator: metrics server")
		}
	}()

	if ckptInterval > 0 {
		go runPeriodicCheckpoints(ctx, orch, ckptInterval)
	}

	log.Logger.Info().Str("addr", ln.Addr().String()).Msg("dmtcp-coordinator: listening for workers")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("dmtcp-coordinator: shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			log.Logger.Error().Err(err).Msg("dmtcp-coordinator: accept loop exited")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	return mux
}

func runPeriodicCheckpoints(ctx context.Context, orch *coordinator.Orchestrator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := orch.TriggerCycle(ctx); err != nil {
				log.Logger.Warn().Err(err).Msg("dmtcp-coordinator: periodic checkpoint cycle failed")
			}
		}
	}
}
