// Package types holds the data model shared across the coordinator and
// worker halves of the checkpoint/restart core: process identity, worker
// lifecycle state, and the coordinator-side bookkeeping record for each
// admitted worker.
package types

import (
	"fmt"
	"time"
)

// UniquePid identifies a process uniquely across the cluster and across
// restarts. It doubles as a computation-group id when it names the root
// of a process tree. Comparison is lexicographic over (HostID, Pid,
// StartTime, Generation), matching the wire layout in pkg/protocol.
type UniquePid struct {
	HostID      uint64
	Pid         int32
	StartTime   int64
	Generation  int32
}

// String renders a UniquePid the way coordinator logs identify workers.
func (u UniquePid) String() string {
	return fmt.Sprintf("%x-%d-%d-%d", u.HostID, u.Pid, u.StartTime, u.Generation)
}

// IsZero reports whether u is the unassigned UniquePid.
func (u UniquePid) IsZero() bool {
	return u.HostID == 0 && u.Pid == 0 && u.StartTime == 0 && u.Generation == 0
}

// Compare returns -1, 0, or 1 following the total order required by
// leader election (lowest ConnectionIdentifier wins, ties broken by
// lowest UniquePid).
func (u UniquePid) Compare(o UniquePid) int {
	switch {
	case u.HostID != o.HostID:
		return cmp(u.HostID, o.HostID)
	case u.Pid != o.Pid:
		return cmp(u.Pid, o.Pid)
	case u.StartTime != o.StartTime:
		return cmp(u.StartTime, o.StartTime)
	default:
		return cmp(u.Generation, o.Generation)
	}
}

func cmp[T int32 | int64 | uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// WorkerState is the finite set of states a worker passes through during
// one checkpoint cycle. It is strictly monotonic within a cycle and
// resets to Running after DMT_DO_RESUME.
type WorkerState int32

const (
	StateUnknown WorkerState = iota
	StateRunning
	StateSuspended
	StateFDLeaderElection
	StatePreCkptNSRegister
	StatePreCkptNSQuery
	StateDrained
	StateCheckpointed
	StateNameServiceDataRegistered
	StateDoneQuerying
	StateRefilled
)

var stateNames = map[WorkerState]string{
	StateUnknown:                   "UNKNOWN",
	StateRunning:                   "RUNNING",
	StateSuspended:                 "SUSPENDED",
	StateFDLeaderElection:          "FD_LEADER_ELECTION",
	StatePreCkptNSRegister:         "PRE_CKPT_NS_REGISTER",
	StatePreCkptNSQuery:            "PRE_CKPT_NS_QUERY",
	StateDrained:                   "DRAINED",
	StateCheckpointed:              "CHECKPOINTED",
	StateNameServiceDataRegistered: "NAME_SERVICE_DATA_REGISTERED",
	StateDoneQuerying:              "DONE_QUERYING",
	StateRefilled:                  "REFILLED",
}

func (s WorkerState) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("WorkerState(%d)", int32(s))
}

// Valid reports whether s is a recognized state; used by the Message
// codec's IsValid check.
func (s WorkerState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// WorkerRecord is the coordinator-side bookkeeping entry for one admitted
// worker: its identity and computation group, a recorded state, its
// checkpoint directory, whether it counts towards barrier quorum, and
// join/last-seen times. The link itself is held by the coordinator.
type WorkerRecord struct {
	ID              UniquePid
	CompGroup       UniquePid
	State           WorkerState
	CheckpointDir   string
	CountsToQuorum  bool
	JoinedAt        time.Time
	LastSeen        time.Time
	CheckpointCount uint64
}

// Touch updates LastSeen to now.
func (w *WorkerRecord) Touch(now time.Time) {
	w.LastSeen = now
}
