package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkersTotal tracks admitted workers by their current WorkerState.
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dmtcp_workers_total",
			Help: "Total number of admitted workers by state",
		},
		[]string{"state"},
	)

	CyclesCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dmtcp_cycles_completed_total",
			Help: "Total number of checkpoint cycles that reached REFILLED for every worker",
		},
	)

	CyclesAbortedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmtcp_cycles_aborted_total",
			Help: "Total number of checkpoint cycles aborted, by reason",
		},
		[]string{"reason"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dmtcp_cycle_duration_seconds",
			Help:    "Wall-clock duration of a completed checkpoint cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dmtcp_stage_duration_seconds",
			Help:    "Wall-clock duration of a single barrier stage, by stage name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	CoordTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmtcp_coord_timestamp",
			Help: "The coordinator's monotonically increasing cycle timestamp",
		},
	)

	// RaftLeader/RaftPeers report on the optional coordinator-HA
	// replication group (pkg/coordinator.Replicator).
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmtcp_coordinator_raft_is_leader",
			Help: "Whether this coordinator replica is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmtcp_coordinator_raft_peers_total",
			Help: "Total number of coordinator replicas in the Raft group",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(CyclesCompletedTotal)
	prometheus.MustRegister(CyclesAbortedTotal)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(CoordTimestamp)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
