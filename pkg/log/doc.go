/*
Package log provides structured logging for the coordinator and worker
processes using zerolog.

The package wraps a single global zerolog.Logger, configured once via
Init, and exposes component- and identity-scoped child loggers so that
every log line from the barrier protocol, the checkpoint thread, or the
resource registry can be filtered and correlated without threading a
logger through every call.

# Usage

	log.Init(log.Config{
		Level:      log.QuietLevel(quiet), // from DMTCP_QUIET
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("coordinator listening")

	workerLog := log.WithWorkerID(worker.ID.String())
	workerLog.Info().Str("stage", stage.String()).Msg("barrier reached")

	cycleLog := log.WithCycle(coordTimeStamp)
	cycleLog.Warn().Err(err).Msg("stage timed out, aborting cycle")

# Levels

DMTCP_QUIET (0, 1, 2) maps to Info, Warn, Error via QuietLevel — the
Open Question in spec.md §9 ("DMTCP_QUIET guarded by #if 0") is
resolved by wiring it here rather than leaving it disabled.

# Context loggers

WithComponent tags a logger with the emitting package ("coordinator",
"registry", "rewire", ...). WithWorkerID and WithCompGroup tag logs
with a UniquePid.String(). WithCycle tags logs with the coordTimeStamp
of the checkpoint cycle in progress, so a postmortem can grep one
cycle's worth of output across every worker's log stream.
*/
package log
