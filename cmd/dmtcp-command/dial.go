package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pc2/dmtcp/pkg/config"
	"github.com/pc2/dmtcp/pkg/link"
	"github.com/pc2/dmtcp/pkg/protocol"
)

// sendCommand dials the coordinator, sends one DMT_USER_CMD carrying
// coordCmd, and returns the DMT_USER_CMD_RESULT reply. The connection
// is never admitted as a worker and is closed by the coordinator
// immediately after replying.
func sendCommand(cmd *cobra.Command, coordCmd protocol.CoordCmd, configure func(*protocol.Message)) (*protocol.Message, error) {
	flags := cmd.Flags()
	flagHost, _ := flags.GetString("coord-host")
	flagPort, _ := flags.GetInt("coord-port")
	host, port := config.CoordHostAndPort(flagHost, flagPort)
	addr := fmt.Sprintf("%s:%d", host, port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := link.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dmtcp-command: connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	req := protocol.New(protocol.DMT_USER_CMD)
	req.CoordCmd = coordCmd
	if configure != nil {
		configure(req)
	}
	if err := conn.Send(req, nil); err != nil {
		return nil, fmt.Errorf("dmtcp-command: sending request: %w", err)
	}

	reply, _, err := conn.Recv()
	if err != nil {
		return nil, fmt.Errorf("dmtcp-command: awaiting reply: %w", err)
	}
	if reply.Type != protocol.DMT_USER_CMD_RESULT {
		return nil, fmt.Errorf("dmtcp-command: unexpected reply type %s", reply.Type)
	}
	return reply, nil
}

func statusError(status protocol.CoordCmdStatus) error {
	if status == protocol.NoError {
		return nil
	}
	return fmt.Errorf("coordinator returned %v", status)
}
