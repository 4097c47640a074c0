package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pc2/dmtcp/pkg/protocol"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the coordinator's current cycle timestamp and peer count",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := sendCommand(cmd, protocol.CoordCmdQueryStatus, nil)
		if err != nil {
			return err
		}
		if err := statusError(reply.CoordStatus); err != nil {
			return err
		}
		fmt.Printf("coordTime: %d\npeers:     %d\n", reply.CoordTime, reply.NumPeers)
		return nil
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Trigger one checkpoint cycle across every admitted worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		// requestID has no slot on the wire (the fixed Message layout
		// carries no correlation field), so the coordinator never sees
		// it; it only ties together this invocation's own output lines.
		requestID := uuid.New().String()
		fmt.Printf("request %s: triggering checkpoint cycle\n", requestID)

		reply, err := sendCommand(cmd, protocol.CoordCmdCheckpoint, nil)
		if err != nil {
			return err
		}
		if err := statusError(reply.CoordStatus); err != nil {
			return err
		}
		fmt.Printf("request %s: checkpoint cycle completed, coordTime now %d\n", requestID, reply.CoordTime)
		return nil
	},
}

var setIntervalCmd = &cobra.Command{
	Use:   "set-interval SECONDS",
	Short: "Record a checkpoint interval on the coordinator (the --ckpt-interval schedule is unchanged)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var seconds int
		if _, err := fmt.Sscanf(args[0], "%d", &seconds); err != nil {
			return fmt.Errorf("dmtcp-command: invalid interval %q: %w", args[0], err)
		}
		reply, err := sendCommand(cmd, protocol.CoordCmdSetInterval, func(m *protocol.Message) {
			m.CkptInterval = uint32(seconds)
		})
		if err != nil {
			return err
		}
		if err := statusError(reply.CoordStatus); err != nil {
			return err
		}
		fmt.Printf("checkpoint interval set to %s\n", time.Duration(reply.CkptInterval)*time.Second)
		return nil
	},
}

var listPeersCmd = &cobra.Command{
	Use:   "list-peers",
	Short: "Print the number of workers currently admitted",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := sendCommand(cmd, protocol.CoordCmdListPeers, nil)
		if err != nil {
			return err
		}
		if err := statusError(reply.CoordStatus); err != nil {
			return err
		}
		fmt.Printf("%d worker(s) admitted\n", reply.NumPeers)
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Abort any in-progress cycle and send DMT_KILL_PEER to every admitted worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		reply, err := sendCommand(cmd, protocol.CoordCmdKill, nil)
		if err != nil {
			return err
		}
		return statusError(reply.CoordStatus)
	},
}
