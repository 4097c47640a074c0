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
	Use:     "dmtcp-command",
	Short:   "Send an interactive DMT_USER_CMD request to a dmtcp-coordinator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"dmtcp-command version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("coord-host", "", "Coordinator host (overrides DMTCP_COORD_HOST)")
	rootCmd.PersistentFlags().Int("coord-port", 0, "Coordinator port (overrides DMTCP_COORD_PORT)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(setIntervalCmd)
	rootCmd.AddCommand(listPeersCmd)
	rootCmd.AddCommand(killCmd)
}
