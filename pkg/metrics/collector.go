package metrics

import (
	"time"

	"github.com/pc2/dmtcp/pkg/types"
)

// Source is the subset of coordinator.Orchestrator the collector needs;
// declared here so that pkg/metrics does not import pkg/coordinator.
type Source interface {
	WorkerStateCounts() map[types.WorkerState]int
	CoordTimestamp() int64
	IsRaftLeader() bool
	RaftPeerCount() int
}

// Collector polls a Source on an interval and updates the package's
// Prometheus gauges.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectWorkerMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectWorkerMetrics() {
	counts := c.source.WorkerStateCounts()
	for state, count := range counts {
		WorkersTotal.WithLabelValues(state.String()).Set(float64(count))
	}
	CoordTimestamp.Set(float64(c.source.CoordTimestamp()))
}

func (c *Collector) collectRaftMetrics() {
	if c.source.IsRaftLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	RaftPeers.Set(float64(c.source.RaftPeerCount()))
}
