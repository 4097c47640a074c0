package main

import (
	"hash/fnv"
	"os"
	"time"

	"github.com/pc2/dmtcp/pkg/types"
)

// thisProcess derives the UniquePid identifying the current
// dmtcp-worker invocation: the hostname hashed into HostID (Go has no
// portable equivalent of the original's boot-time host id), the OS
// pid, and the time this worker process started. Unlike the original,
// which persists UniquePid across a fork() so a restarted process
// keeps its identity, a restarted dmtcp-worker here is a brand new OS
// process and is assigned a fresh UniquePid; continuity across restart
// is carried by the Name Service rendezvous instead (pkg/rewire), not
// by identity equality.
func thisProcess() types.UniquePid {
	h := fnv.New64a()
	if hostname, err := os.Hostname(); err == nil {
		h.Write([]byte(hostname))
	}
	return types.UniquePid{
		HostID:    h.Sum64(),
		Pid:       int32(os.Getpid()),
		StartTime: time.Now().Unix(),
		Generation: 0,
	}
}
