/*
Package worker implements the worker side of the barrier protocol.

Worker runs the CKPT goroutine: the single point of contact with the
coordinator during a checkpoint cycle. Connect performs admission
(DMT_NEW_WORKER or DMT_RESTART_WORKER); Run then blocks on the
coordinator link, and each incoming DMT_DO_SUSPEND drives one full
cycle through runCycle's four stages:

 1. acquire the wrapper-execution lock and ack StateSuspended
 2. suspend the application, walk FD_LEADER_ELECTION through
    CHECKPOINT over the local Resource Registry
 3. REGISTER_NAME_SERVICE_DATA through REFILL
 4. await DMT_DO_RESUME, release the lock, resume the application

Each step's ack exactly matches the WorkerState the coordinator's
Orchestrator awaits for that stage; the two packages are two ends of
the same table.

# See Also

  - pkg/coordinator for the stage sequence this package acks against
  - pkg/registry for the per-connection checkpoint/restart pipeline
  - pkg/lock for the wrapper-execution gate and the atfork hook chain
*/
package worker
