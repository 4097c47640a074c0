// Package registry implements the per-worker Resource Registry: the
// set of open "connections" (files, FIFOs, PTYs, TCP sockets, raw and
// stdio FDs) a worker must drain, checkpoint, and later refill or
// rewire. Discovery walks /proc/self/fd and /proc/self/maps; the
// checkpoint and restart pipelines are driven stage-by-stage by the
// worker's CKPT goroutine (pkg/worker).
package registry

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/pc2/dmtcp/pkg/types"
)

// Kind classifies a Connection's underlying OS resource.
type Kind int

const (
	KindFile Kind = iota
	KindFIFO
	KindPTY
	KindTCP
	KindRaw
	KindStdio
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "FILE"
	case KindFIFO:
		return "FIFO"
	case KindPTY:
		return "PTY"
	case KindTCP:
		return "TCP"
	case KindRaw:
		return "RAW"
	case KindStdio:
		return "STDIO"
	default:
		return "UNKNOWN"
	}
}

// Identifier globally identifies a Connection across a computation:
// the owning worker's UniquePid plus a per-worker serial number.
type Identifier struct {
	Owner  types.UniquePid
	Serial uint64
}

// Less implements the election order: lowest Identifier wins, ties
// broken by lowest UniquePid (Owner is already part of Identifier, so
// comparing Owner then Serial captures both rules in one pass).
func (id Identifier) Less(other Identifier) bool {
	if c := id.Owner.Compare(other.Owner); c != 0 {
		return c < 0
	}
	return id.Serial < other.Serial
}

func (id Identifier) String() string {
	return fmt.Sprintf("%s#%d", id.Owner, id.Serial)
}

// Connection is a single open OS resource tracked by the registry.
// Invariant: within one process, every open FD for a ckpt-managed
// resource appears in exactly one Connection's FD list.
type Connection struct {
	ID   Identifier
	Kind Kind
	FDs  []int

	// Path is the file path (FILE/FIFO) or device path (PTY).
	Path string
	// Device/Inode identify the kernel object for dedup and for
	// leader election when it is shared across >1 worker.
	Device uint64
	Inode  uint64

	// Peer is set for TCP connections once the checkpoint-time
	// handshake has exchanged identifiers with the other endpoint.
	Peer Identifier

	HasLock       bool
	IsPreExisting bool
	IsCheckpointed bool

	// drained holds bytes pulled from the kernel socket buffer during
	// the DRAIN stage, to be pushed back during REFILL.
	drained []byte
}

// ShmArea is a MAP_SHARED mapping discovered in /proc/self/maps.
type ShmArea struct {
	Addr     uintptr
	Length   uintptr
	Prot     int
	Offset   int64
	Path     string
	Unlinked bool

	deferredRestore bool
}

// Registry is the per-worker table of Connections and ShmAreas.
type Registry struct {
	mu sync.Mutex

	self types.UniquePid

	conns   map[Identifier]*Connection
	byInode map[uint64]*Connection
	nextSerial uint64

	shmAreas []*ShmArea
}

// New returns an empty Registry owned by self.
func New(self types.UniquePid) *Registry {
	return &Registry{
		self:    self,
		conns:   make(map[Identifier]*Connection),
		byInode: make(map[uint64]*Connection),
	}
}

// protectedFDs are the three standard streams, never adopted into a
// Connection; Discover skips the coordinator link separately.
var protectedFDs = map[int]bool{0: true, 1: true, 2: true}

// Discover scans /proc/self/fd and synthesizes a Connection per
// distinct kernel object, then scans /proc/self/maps for MAP_SHARED
// regions. coordLinkFD is excluded as the coordinator's own link.
func (r *Registry) Discover(coordLinkFD int) error {
	if err := r.discoverFDs(coordLinkFD); err != nil {
		return err
	}
	return r.discoverShm()
}

func (r *Registry) discoverFDs(coordLinkFD int) error {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return fmt.Errorf("registry: reading /proc/self/fd: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		fd, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if fd == coordLinkFD || protectedFDs[fd] {
			continue
		}

		target, err := os.Readlink(filepath.Join("/proc/self/fd", entry.Name()))
		if err != nil {
			continue
		}

		var st os.FileInfo
		if st, err = os.Stat(filepath.Join("/proc/self/fd", entry.Name())); err != nil {
			continue
		}

		kind, inode := classify(target, st)
		if existing, ok := r.byInode[inode]; ok && inode != 0 {
			existing.FDs = append(existing.FDs, fd)
			continue
		}

		conn := &Connection{
			ID:            Identifier{Owner: r.self, Serial: r.nextSerial},
			Kind:          kind,
			FDs:           []int{fd},
			Path:          target,
			Inode:         inode,
			IsPreExisting: true,
		}
		r.nextSerial++
		r.conns[conn.ID] = conn
		if inode != 0 {
			r.byInode[inode] = conn
		}
	}
	return nil
}

func classify(target string, st os.FileInfo) (Kind, uint64) {
	var inode uint64
	if sys, ok := st.Sys().(*syscall.Stat_t); ok {
		inode = sys.Ino
	}

	switch {
	case strings.HasPrefix(target, "socket:"):
		return KindTCP, inode
	case strings.HasPrefix(target, "pipe:"):
		return KindFIFO, inode
	case target == "/dev/ptmx", strings.HasPrefix(target, "/dev/pts/"), strings.HasPrefix(target, "/dev/tty"):
		return KindPTY, inode
	case strings.HasPrefix(target, "/dev/"):
		return KindRaw, inode
	default:
		return KindFile, inode
	}
}

// discoverShm walks /proc/self/maps looking for shared mappings
// backed by a regular file. The mapping itself is not modified here;
// blanking it to PROT_NONE|MAP_ANONYMOUS|MAP_FIXED is a responsibility
// of the (external) dump engine at CHECKPOINT time, driven by the
// ShmArea records this method produces.
func (r *Registry) discoverShm() error {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return fmt.Errorf("registry: reading /proc/self/maps: %w", err)
	}
	defer f.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		perms := fields[1]
		if !strings.Contains(perms, "s") {
			continue // not MAP_SHARED
		}
		path := fields[5]
		if isDMTCPInternal(path) {
			continue
		}

		addrRange := strings.SplitN(fields[0], "-", 2)
		if len(addrRange) != 2 {
			continue
		}
		lo, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}
		hi, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil {
			continue
		}
		offset, _ := strconv.ParseInt(fields[2], 16, 64)

		r.shmAreas = append(r.shmAreas, &ShmArea{
			Addr:     uintptr(lo),
			Length:   uintptr(hi - lo),
			Offset:   offset,
			Path:     path,
			Unlinked: strings.Contains(path, "(deleted)"),
		})
	}
	return scanner.Err()
}

func isDMTCPInternal(path string) bool {
	return strings.Contains(path, "SYSV") || strings.Contains(path, "/dev/shm/nscd") ||
		strings.Contains(path, "/dev/infiniband")
}

// Connections returns every tracked Connection in Identifier order,
// giving callers a deterministic iteration order for testing.
func (r *Registry) Connections() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// Get returns the Connection with the given Identifier, if tracked.
func (r *Registry) Get(id Identifier) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// Register adopts a Connection the caller constructed directly (used
// by tests and by the TCP checkpoint-time handshake once a peer
// Identifier is known).
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
	if c.Inode != 0 {
		r.byInode[c.Inode] = c
	}
}

// ShmAreas returns every tracked shared-memory region.
func (r *Registry) ShmAreas() []*ShmArea {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ShmArea, len(r.shmAreas))
	copy(out, r.shmAreas)
	return out
}

// ElectLeaders runs the FD_LEADER_ELECTION stage rule across a group
// of candidate owners for the same kernel object: lowest Identifier
// wins; ties broken by lowest UniquePid (already folded into
// Identifier.Less). Only the elected Connection has HasLock set.
func ElectLeaders(candidates []*Connection) *Connection {
	if len(candidates) == 0 {
		return nil
	}
	leader := candidates[0]
	for _, c := range candidates[1:] {
		if c.ID.Less(leader.ID) {
			leader = c
		}
	}
	leader.HasLock = true
	return leader
}
