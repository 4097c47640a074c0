// Package protocol implements the fixed-layout binary control message
// that flows over every coordinator↔worker link, plus the enums it
// carries (message type, coordinator command, coordinator command
// status). The layout is bit-exact and little-endian on both 32- and
// 64-bit hosts; see HeaderSize and Message.Encode/Decode.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pc2/dmtcp/pkg/types"
)

// HeaderSize is the canonical on-wire size of a Message header. A
// decoder rejects any header reporting a different MsgSize.
const HeaderSize = 144

// magic is the 16-byte sentinel every header must begin with.
var magic = func() [16]byte {
	var b [16]byte
	copy(b[:], "DMTCP?MAGIC?")
	return b
}()

// ErrBadMagic is returned by Decode when the header's magic bytes do
// not match the sentinel.
var ErrBadMagic = errors.New("protocol: bad magic bytes")

// ErrBadSize is returned by Decode when MsgSize does not equal
// HeaderSize.
var ErrBadSize = errors.New("protocol: unexpected message size")

// Message is the fixed-size control record exchanged between
// coordinator and worker. Field order and sizes follow the wire
// layout table exactly; do not reorder fields without also changing
// Encode/Decode.
type Message struct {
	MagicBits   [16]byte
	MsgSize     uint32
	ExtraBytes  uint32
	Type        MessageType
	State       types.WorkerState
	From        types.UniquePid
	CompGroup   types.UniquePid
	VirtualPid  int32
	RealPid     int32
	NSID        [8]byte
	KeyLen      uint32
	ValLen      uint32
	NumPeers    uint32
	IsRunning   uint32
	CoordCmd    CoordCmd
	CoordStatus CoordCmdStatus
	CoordTime   int64
	CkptInterval uint32
	IPAddr      uint32
	UniqueIDOffset uint32
	LogMask     uint32
}

// New returns a Message with MagicBits/MsgSize already populated,
// ready for its other fields to be filled in.
func New(t MessageType) *Message {
	m := &Message{MagicBits: magic, MsgSize: HeaderSize, Type: t}
	return m
}

// Poison zero-fills m so that forgotten fields are never read as
// valid; magic and size are re-stamped afterwards since a poisoned
// message is typically about to be reused, not discarded.
func (m *Message) Poison() {
	*m = Message{}
	m.MagicBits = magic
	m.MsgSize = HeaderSize
}

// IsValid checks the invariants the codec must enforce before a
// caller acts on a decoded Message: well-known magic, canonical size,
// a recognized Type, and a recognized State.
func (m *Message) IsValid() bool {
	if m.MagicBits != magic {
		return false
	}
	if m.MsgSize != HeaderSize {
		return false
	}
	if !m.Type.Valid() {
		return false
	}
	if !m.State.Valid() {
		return false
	}
	return true
}

// Encode writes the fixed header for m into buf, which must be at
// least HeaderSize bytes. It returns the number of bytes written.
func (m *Message) Encode(buf []byte) (int, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("protocol: encode buffer too small: %d < %d", len(buf), HeaderSize)
	}
	w := bytes.NewBuffer(buf[:0])
	w.Write(m.MagicBits[:])
	putU32(w, m.MsgSize)
	putU32(w, m.ExtraBytes)
	putU32(w, uint32(m.Type))
	putU32(w, uint32(m.State))
	putUniquePid(w, m.From)
	putUniquePid(w, m.CompGroup)
	putI32(w, m.VirtualPid)
	putI32(w, m.RealPid)
	w.Write(m.NSID[:])
	putU32(w, m.KeyLen)
	putU32(w, m.ValLen)
	putU32(w, m.NumPeers)
	putU32(w, m.IsRunning)
	putU32(w, uint32(m.CoordCmd))
	putI32(w, int32(m.CoordStatus))
	putI64(w, m.CoordTime)
	putU32(w, m.CkptInterval)
	putU32(w, m.IPAddr)
	putU32(w, m.UniqueIDOffset)
	putU32(w, m.LogMask)
	return w.Len(), nil
}

// Decode reads a fixed header from buf, which must contain exactly
// HeaderSize bytes, validating magic and size before returning.
func Decode(buf []byte) (*Message, error) {
	if len(buf) != HeaderSize {
		return nil, fmt.Errorf("protocol: decode buffer wrong size: %d != %d", len(buf), HeaderSize)
	}
	r := bytes.NewReader(buf)
	m := &Message{}
	r.Read(m.MagicBits[:])
	if m.MagicBits != magic {
		return nil, ErrBadMagic
	}
	m.MsgSize = getU32(r)
	if m.MsgSize != HeaderSize {
		return nil, ErrBadSize
	}
	m.ExtraBytes = getU32(r)
	m.Type = MessageType(getU32(r))
	m.State = types.WorkerState(getU32(r))
	m.From = getUniquePid(r)
	m.CompGroup = getUniquePid(r)
	m.VirtualPid = getI32(r)
	m.RealPid = getI32(r)
	r.Read(m.NSID[:])
	m.KeyLen = getU32(r)
	m.ValLen = getU32(r)
	m.NumPeers = getU32(r)
	m.IsRunning = getU32(r)
	m.CoordCmd = CoordCmd(getU32(r))
	m.CoordStatus = CoordCmdStatus(getI32(r))
	m.CoordTime = getI64(r)
	m.CkptInterval = getU32(r)
	m.IPAddr = getU32(r)
	m.UniqueIDOffset = getU32(r)
	m.LogMask = getU32(r)
	return m, nil
}

func putU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func putI32(w *bytes.Buffer, v int32) { putU32(w, uint32(v)) }

func putI64(w *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.Write(b[:])
}

func putUniquePid(w *bytes.Buffer, u types.UniquePid) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], u.HostID)
	w.Write(b[:])
	putI32(w, u.Pid)
	putI64(w, u.StartTime)
	putI32(w, u.Generation)
}

func getU32(r *bytes.Reader) uint32 {
	var b [4]byte
	r.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

func getI32(r *bytes.Reader) int32 { return int32(getU32(r)) }

func getI64(r *bytes.Reader) int64 {
	var b [8]byte
	r.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]))
}

func getUniquePid(r *bytes.Reader) types.UniquePid {
	var hb [8]byte
	r.Read(hb[:])
	host := binary.LittleEndian.Uint64(hb[:])
	pid := getI32(r)
	start := getI64(r)
	gen := getI32(r)
	return types.UniquePid{HostID: host, Pid: pid, StartTime: start, Generation: gen}
}
