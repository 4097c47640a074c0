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
	Use:     "dmtcp-worker -- PROGRAM [ARGS...]",
	Short:   "Launch and checkpoint-manage a process under a dmtcp-coordinator",
	Version: Version,
	Long: `dmtcp-worker launches PROGRAM as a child process, joins the
computation group registered with dmtcp-coordinator, and drives the
four-stage CKPT cycle (suspend, checkpoint, refill, resume) whenever
the coordinator calls a barrier.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWorker,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dmtcp-worker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.Flags()
	flags.String("coord-host", "", "Coordinator host (overrides DMTCP_COORD_HOST)")
	flags.Int("coord-port", 0, "Coordinator port (overrides DMTCP_COORD_PORT)")
	flags.Bool("restart", false, "Join as a restarting worker (DMT_RESTART_WORKER) rather than a fresh one")
	flags.String("checkpoint-dir", "", "Root directory for checkpoint images (defaults to dmtcp-<user>@<host> under DMTCP_TMPDIR, else TMPDIR, else /tmp)")
	flags.Int("ckpt-signal", 0, "Override DMTCP_SIGCKPT for the signal sent to PROGRAM at suspend (resume sends SIGCONT)")

	flags.SetInterspersed(false)
}
