package memblock

import (
	"encoding/binary"
	"unsafe"

	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/layout"
	"github.com/hanwen/go-pmemblock/vmem"
)

// hugeKind implements kindOps for huge, chunk-granularity blocks: 1:1 with
// a chunk header in the zone.
type hugeKind struct{}

// HugeOps is the operation vector bound to every huge Descriptor.
var HugeOps blockOps = shared{kindOps: hugeKind{}}

func (hugeKind) BlockSize(*Descriptor) uint64 {
	return layout.ChunkSize
}

// GetRealData returns the address of chunk_id's data area — the entire
// allocation, header bytes included.
func (hugeKind) GetRealData(m *Descriptor) []byte {
	return m.Heap.ChunkBytes(m.ZoneIDField, m.ChunkIDField)
}

// GetState maps the persistent chunk type to an allocation state. Huge
// chunks other than FREE/USED (e.g. a FOOTER slot queried by mistake) are
// reported unknown rather than guessed at.
func (hugeKind) GetState(m *Descriptor) State {
	switch m.chunkHeader().Type {
	case layout.ChunkTypeUsed:
		return Allocated
	case layout.ChunkTypeFree:
		return Free
	default:
		return StateUnknown
	}
}

// GetLock returns no lock: huge chunks are serialized by the bucket that
// owns them, a concern external to this subsystem.
func (hugeKind) GetLock(*Descriptor) heap.Locker {
	return nil
}

// EnsureHeaderType requires the chunk to currently be FREE and ORs in the
// flavor's flag bit if it is not already set. The single 8-byte store
// makes this fail-safe atomic: torn writes are impossible, so no redo log
// entry is needed, and repeating the call after a crash mid-write is safe
// because the store itself cannot be partially observed.
func (hugeKind) EnsureHeaderType(m *Descriptor, t layout.HeaderType) {
	hdr := m.chunkHeader()
	assertf(hdr.Type == layout.ChunkTypeFree, "huge.EnsureHeaderType: chunk %d/%d is not free (type=%v)", m.ZoneIDField, m.ChunkIDField, hdr.Type)

	want := layout.HeaderTypeToFlag[t]
	if hdr.Flags&want != 0 {
		return
	}

	b := m.Heap.ChunkHeaderBytes(m.ZoneIDField, m.ChunkIDField)
	addr := uintptr(unsafe.Pointer(&b[0]))
	vmem.AddToTx(addr, layout.ChunkHeaderSize)
	hdr.Flags |= want
	hdr.PutBytes(b)
	m.Heap.Persist(b)
	vmem.RemoveFromTx(addr, layout.ChunkHeaderSize)
}

// PrepHdr prepares the chunk header for a commit that flips the chunk
// between FREE and USED, and — for multi-unit allocations — the trailing
// footer slot. The head-header update strictly precedes the footer write
// in every code path below, because the footer slot may currently belong
// to a live neighboring chunk and is only safe to touch once the owning
// chunk's new state is durable (or queued ahead of it in the same redo
// context).
func (hugeKind) PrepHdr(m *Descriptor, op Op, ctx heap.Context) {
	hdrBytes := m.Heap.ChunkHeaderBytes(m.ZoneIDField, m.ChunkIDField)
	cur := layout.ChunkHeaderFromBytes(hdrBytes)

	newType := layout.ChunkTypeFree
	if op == OpAllocated {
		newType = layout.ChunkTypeUsed
	}
	val := layout.ChunkHeader{Type: newType, Flags: cur.Flags, SizeIdx: m.SizeIdx}.Pack()

	if ctx == nil {
		binary.LittleEndian.PutUint64(hdrBytes, val)
		m.Heap.Persist(hdrBytes)
	} else {
		ctx.AddEntry(hdrBytes, val, heap.OpSet)
	}

	if m.SizeIdx > 1 {
		headerAddr := uintptr(unsafe.Pointer(&hdrBytes[0]))
		vmem.MakeNoAccess(headerAddr+layout.ChunkHeaderSize, uintptr(m.SizeIdx-1)*layout.ChunkHeaderSize)
	}

	if m.SizeIdx <= 1 {
		return
	}

	footerBytes := m.Heap.ChunkHeaderBytes(m.ZoneIDField, m.ChunkIDField+m.SizeIdx-1)
	footerVal := layout.ChunkHeader{Type: layout.ChunkTypeFooter, Flags: 0, SizeIdx: m.SizeIdx}.Pack()

	// The footer is transient: reconstructable at heap-open, so it is
	// never required to be durable, and must never be allowed to race
	// ahead of the head-header update above.
	if ctx == nil {
		binary.LittleEndian.PutUint64(footerBytes, footerVal)
		vmem.SetClean(uintptr(unsafe.Pointer(&footerBytes[0])), layout.ChunkHeaderSize)
	} else {
		ctx.AddTypedEntry(footerBytes, footerVal, heap.OpSet, heap.Transient)
	}
}
