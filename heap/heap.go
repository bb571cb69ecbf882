// Package heap defines the collaborator interfaces that package memblock
// consumes: address arithmetic into the persistent layout, persistence
// primitives, per-run locking, and redo-log entry append. It also provides
// FileHeap, a minimal mmap-backed implementation sufficient to exercise the
// contract end to end in tests and the pmemblockdump command — it is not a
// pool/root-object façade and implements no allocation policy.
package heap

import "github.com/hanwen/go-pmemblock/layout"

// Heap is the external collaborator a memory-block descriptor resolves
// addresses through. Implementations own the zone/chunk storage, the
// per-run mutex registry, and the persistence primitives. All byte-slice
// results alias the heap's backing storage directly: writes through them
// are writes to persistent memory.
type Heap interface {
	// ChunkHeaderBytes returns the 8-byte persistent chunk header slot
	// for the given zone and chunk index.
	ChunkHeaderBytes(zoneID, chunkID uint32) []byte

	// ChunkBytes returns the layout.ChunkSize-byte data area owned by
	// the given chunk-header slot: for a huge block this is the whole
	// allocation (header-flavor bytes followed by user data); for a
	// run chunk it is the run metadata block followed by the run's
	// data area.
	ChunkBytes(zoneID, chunkID uint32) []byte

	// RunLock returns the mutex registered for the run chunk at
	// (zoneID, chunkID). Every run chunk in a zone has its own lock;
	// huge chunks have none (serialized by bucket ownership instead).
	RunLock(zoneID, chunkID uint32) Locker

	// Persist flushes addr, which must alias a slice returned by
	// ChunkHeaderBytes or ChunkBytes on this Heap, to the persistence
	// domain.
	Persist(addr []byte)

	// Locate decomposes an absolute heap offset into the zone and chunk
	// it falls within and the residual byte offset into that chunk's
	// data area (the same base ChunkBytes returns). Only the Heap knows
	// its own per-zone chunk count, so this arithmetic cannot live
	// outside it.
	Locate(off uint64) (zoneID, chunkID uint32, chunkOff uint64)
}

// Locker is the minimal mutex contract package memblock relies on for
// run-block serialization (sync.Mutex satisfies it).
type Locker interface {
	Lock()
	Unlock()
}

// ChunkHeader reads and decodes the chunk header at (zoneID, chunkID).
func ChunkHeader(h Heap, zoneID, chunkID uint32) layout.ChunkHeader {
	return layout.ChunkHeaderFromBytes(h.ChunkHeaderBytes(zoneID, chunkID))
}

// PutChunkHeader encodes and writes hdr into the chunk header slot at
// (zoneID, chunkID), without persisting it. Callers that need a durable
// single-word store should persist the returned bytes themselves.
func PutChunkHeader(h Heap, zoneID, chunkID uint32, hdr layout.ChunkHeader) []byte {
	b := h.ChunkHeaderBytes(zoneID, chunkID)
	hdr.PutBytes(b)
	return b
}
