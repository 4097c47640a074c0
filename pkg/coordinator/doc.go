/*
Package coordinator implements the coordinator half of the barrier
protocol: admitting workers into a computation group, persisting the
Worker-Record table, answering Name Service requests, and driving
every admitted worker through the ten-stage checkpoint cycle defined
by checkpointStages.

Orchestrator is the entry point: Serve accepts worker links, admit
validates and registers each one, and TriggerCycle runs one full
barrier sweep, aborting with DMT_KILL_PEER on timeout or protocol
violation.

Replicator (fsm.go, replicator.go) is an optional Raft-backed layer,
built with hashicorp/raft and raft-boltdb, that replicates Worker
Record and Name Service mutations across standby coordinators so one
can take over leadership without forcing every worker to re-admit. A
single-coordinator deployment never constructs one; Orchestrator's
replication calls are no-ops when WithReplicator was never called.

# See Also

  - pkg/worker for the CKPT-side counterpart to each stage
  - pkg/nameservice for the Name Service implementation this package wraps
  - pkg/metrics for the Source interface Orchestrator satisfies
*/
package coordinator
