/*
Package types defines the data model shared by the coordinator and the
worker: process identity, checkpoint lifecycle state, and the
coordinator-side bookkeeping record for each admitted worker.

# Core Types

  - UniquePid: host-id/pid/start-time/generation tuple identifying a
    process across the cluster and across restarts. Doubles as a
    computation-group id when it names a process tree's root.
  - WorkerState: the finite, strictly-monotonic-per-cycle set of states
    a worker passes through (RUNNING, SUSPENDED, ..., REFILLED).
  - WorkerRecord: coordinator-side entry tracking one admitted worker's
    identity, current state, checkpoint directory, and quorum
    membership.

# Thread Safety

Values in this package carry no synchronization of their own; callers
(pkg/coordinator's Orchestrator, pkg/worker's Worker) guard concurrent
access with their own locks.

# See Also

  - pkg/protocol for the wire encoding of UniquePid and WorkerState
  - pkg/coordinator for the Worker-Record table and barrier logic
  - pkg/worker for the per-process checkpoint state machine
*/
package types
