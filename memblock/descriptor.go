// Package memblock resolves a persistent-memory offset into a typed
// allocation-unit descriptor and dispatches operations (size, state,
// header I/O, locking, header preparation for redo-logged updates) to one
// of two concrete block kinds: huge chunks and run sub-blocks, each
// crossed with one of three inline header flavors.
package memblock

import (
	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/layout"
)

// Kind is the block's allocation-unit flavor.
type Kind int

const (
	// none is the reserved zero value of Kind, matching the original's
	// MEMORY_BLOCK_NONE sentinel: a Descriptor in this state has not
	// been resolved against a heap yet.
	none Kind = iota
	Huge
	Run

	maxKind
)

func (k Kind) String() string {
	switch k {
	case Huge:
		return "huge"
	case Run:
		return "run"
	default:
		return "none"
	}
}

// State is the allocation state of a block as read from persistent
// metadata.
type State int

const (
	StateUnknown State = iota
	Allocated
	Free
)

func (s State) String() string {
	switch s {
	case Allocated:
		return "allocated"
	case Free:
		return "free"
	default:
		return "unknown"
	}
}

// Op names the transition prep_hdr prepares a header for.
type Op int

const (
	OpAllocated Op = iota
	OpFree
)

// Descriptor identifies one allocation unit within a heap and carries the
// operation vector chosen for it. It is value-typed, cheaply copyable, and
// owns no persistent state — the zone/chunk/run storage it names is owned
// by Heap.
//
// The zero Descriptor is the None sentinel: its Kind is the reserved zero
// value, distinct from Huge and Run, matching the original's
// MEMORY_BLOCK_NONE.
type Descriptor struct {
	Heap heap.Heap

	ZoneIDField  uint32
	ChunkIDField uint32

	// BlockOffField is the unit index within a run (0 for huge blocks).
	BlockOffField uint32

	// SizeIdx is, for huge blocks, the chunk span; for run blocks, the
	// number of bitmap bits the block occupies. Zero means "size is
	// only recoverable from the allocation header".
	SizeIdx uint32

	HeaderType layout.HeaderType
	Kind       Kind

	ops blockOps
}

// None is the zero-value "no block" sentinel.
var None = Descriptor{}

// ZoneID, ChunkID and BlockOff return the addressing triple, for call
// sites that only need that.
func (m Descriptor) ZoneID() uint32   { return m.ZoneIDField }
func (m Descriptor) ChunkID() uint32  { return m.ChunkIDField }
func (m Descriptor) BlockOff() uint32 { return m.BlockOffField }

// IsNone reports whether m is the zero/unresolved sentinel.
func (m Descriptor) IsNone() bool {
	return m.Kind == none
}

// chunkHeader reads the persistent chunk header that owns m.
func (m Descriptor) chunkHeader() layout.ChunkHeader {
	return heap.ChunkHeader(m.Heap, m.ZoneIDField, m.ChunkIDField)
}

// persistBlock flushes addr, a slice obtained from m's heap, to the
// persistence domain.
func persistBlock(m *Descriptor, addr []byte) {
	m.Heap.Persist(addr)
}

// The methods below forward to the operation vector bound by FromOffset or
// RebuildState. Calling any of them on a Descriptor that has not gone
// through one of those two — including the None sentinel — is a
// programming error.

func (m *Descriptor) requireOps() blockOps {
	assertf(m.ops != nil, "memblock: Descriptor used before FromOffset/RebuildState bound its operation vector")
	return m.ops
}

// BlockSize returns the size in bytes of one allocation unit for m's kind:
// the chunk size for a huge block, the run's configured block size for a
// run block.
func (m *Descriptor) BlockSize() uint64 { return m.requireOps().BlockSize(m) }

// GetRealData returns m's raw bytes, inline header included.
func (m *Descriptor) GetRealData() []byte { return m.requireOps().GetRealData(m) }

// GetUserData returns m's bytes past its inline header.
func (m *Descriptor) GetUserData() []byte { return m.requireOps().GetUserData(m) }

// GetState reads m's allocation state from persistent metadata.
func (m *Descriptor) GetState() State { return m.requireOps().GetState(m) }

// GetLock returns the lock serializing concurrent updates to m, or nil if
// m's kind needs none.
func (m *Descriptor) GetLock() heap.Locker { return m.requireOps().GetLock(m) }

// EnsureHeaderType makes sure m's owning chunk is marked for header flavor
// t. For a huge block it sets the flavor's flag if missing; a run block's
// flavor is fixed when the run is created, so it is only checked, and only
// when Debug is set.
func (m *Descriptor) EnsureHeaderType(t layout.HeaderType) { m.requireOps().EnsureHeaderType(m, t) }

// PrepHdr appends (or, for a huge block with a nil ctx, directly applies)
// the metadata mutation that transitions m to op.
func (m *Descriptor) PrepHdr(op Op, ctx heap.Context) { m.requireOps().PrepHdr(m, op, ctx) }

// GetRealSize returns m's total size, inline header included.
func (m *Descriptor) GetRealSize() uint64 { return m.requireOps().GetRealSize(m) }

// GetUserSize returns m's size with its inline header subtracted.
func (m *Descriptor) GetUserSize() uint64 { return m.requireOps().GetUserSize(m) }

// WriteHeader writes m's inline allocation header.
func (m *Descriptor) WriteHeader(extra uint64, flags uint16) {
	m.requireOps().WriteHeader(m, extra, flags)
}

// Invalidate marks m's header and user bytes clean for instrumentation.
func (m *Descriptor) Invalidate() { m.requireOps().Invalidate(m) }

// ReinitHeader restores instrumentation visibility of m's header, called
// while rebuilding heap state after opening a pool.
func (m *Descriptor) ReinitHeader() { m.requireOps().ReinitHeader(m) }

// GetExtra reads m's inline header's type-specific extra field.
func (m *Descriptor) GetExtra() uint64 { return m.requireOps().GetExtra(m) }

// GetFlags reads m's inline header's allocation flags.
func (m *Descriptor) GetFlags() uint16 { return m.requireOps().GetFlags(m) }
