package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dmtcp-coordinator",
	Short: "Barrier coordinator for the checkpoint/restart core",
	Long: `dmtcp-coordinator accepts worker connections, admits them into a
computation group, and drives periodic or on-demand checkpoint cycles
through the ten-stage barrier protocol.`,
	Version: Version,
	RunE:    runCoordinator,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dmtcp-coordinator version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.Flags()
	flags.String("host", "", "Coordinator bind host (overrides DMTCP_COORD_HOST)")
	flags.Int("port", 0, "Coordinator bind port (overrides DMTCP_COORD_PORT)")
	flags.String("data-dir", "./dmtcp-data", "Directory for the durable Name-Service/Worker-Record/manifest store")
	flags.String("metrics-addr", "127.0.0.1:9180", "Address to serve /metrics, /health, /ready, /live on")
	flags.Duration("stage-timeout", 0, "Per-stage barrier timeout (0 keeps the Orchestrator default of 30s)")
	flags.Duration("ckpt-interval", 0, "Automatic checkpoint interval; 0 disables periodic checkpoints")

	flags.Bool("ha-enable", false, "Enable Raft-backed replication across standby coordinators")
	flags.String("ha-local-id", "", "This replica's Raft server ID (required with --ha-enable)")
	flags.String("ha-bind-addr", "127.0.0.1:7946", "Raft transport bind address")
	flags.String("ha-data-dir", "./dmtcp-raft", "Directory for this replica's Raft log/snapshot store")
	flags.Bool("ha-bootstrap", false, "Bootstrap a new single-node Raft cluster on startup")
}
