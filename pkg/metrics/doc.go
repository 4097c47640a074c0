/*
Package metrics exposes checkpoint-coordination observability through
Prometheus: worker counts by WorkerState, the coordinator's current
coordTimestamp, and (when an optional Raft-backed coordinator.Replicator
is in use) leader/peer gauges for the HA replication group. The
barrier-stage and full-cycle duration histograms and the completed and
aborted cycle counters are registered as well, but no code in this
repository records into them.

Collector polls a Source — implemented by pkg/coordinator.Orchestrator —
on a fixed interval and writes the results into the package's gauges;
Handler exposes them at the usual /metrics HTTP endpoint via
promhttp.Handler.

HealthChecker (health.go) and Timer (timer.go) are general-purpose
helpers for liveness/readiness probes and ad hoc timing into a
Prometheus histogram; outside their own tests neither binary uses Timer.
*/
package metrics
