package heap

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/hanwen/go-pmemblock/layout"
)

// FileHeap is a Heap backed by an mmap'd file laid out as:
//
//	zone0: [zone header][chunk header array][chunk data area]
//
// with ZoneCount zones placed back to back, each occupying
// layout.ZoneMaxSize bytes regardless of ChunkCount (matching the real
// heap's fixed zone stride). It is a test and demonstration backing store,
// not a pool/root-object façade: it performs no allocation policy and
// tracks no live-object bookkeeping beyond the raw chunk-header array.
type FileHeap struct {
	f          *os.File
	m          mmap.MMap
	chunkCount uint32

	mu       sync.Mutex
	runLocks map[uint64]*sync.Mutex
}

// zoneBase, chunkHeaderArrayBase and chunkDataAreaBase derive the byte offsets
// used to address a (zoneID, chunkID) pair within the mapped file.
func (h *FileHeap) zoneBase(zoneID uint32) int64 {
	return int64(zoneID) * layout.ZoneMaxSize
}

func (h *FileHeap) chunkHeaderArrayBase(zoneID uint32) int64 {
	return h.zoneBase(zoneID) + layout.ZoneHeaderSize
}

func (h *FileHeap) chunkDataAreaBase(zoneID uint32) int64 {
	return h.chunkHeaderArrayBase(zoneID) + int64(h.chunkCount)*layout.ChunkHeaderSize
}

// OpenFileHeap creates (or truncates) path to hold zoneCount zones of
// chunkCount chunks each, zeroes it, and maps it into memory.
func OpenFileHeap(path string, zoneCount, chunkCount uint32) (*FileHeap, error) {
	size := int64(zoneCount) * layout.ZoneMaxSize
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pmemblock: open %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("pmemblock: truncate %s to %d: %w", path, size, err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pmemblock: mmap %s: %w", path, err)
	}

	h := &FileHeap{
		f:          f,
		m:          m,
		chunkCount: chunkCount,
		runLocks:   make(map[uint64]*sync.Mutex),
	}
	for z := uint32(0); z < zoneCount; z++ {
		for c := uint32(0); c < chunkCount; c++ {
			layout.ChunkHeader{Type: layout.ChunkTypeFree}.PutBytes(h.ChunkHeaderBytes(z, c))
		}
	}
	return h, nil
}

// Close unmaps and closes the backing file.
func (h *FileHeap) Close() error {
	if err := h.m.Unmap(); err != nil {
		h.f.Close()
		return err
	}
	return h.f.Close()
}

func (h *FileHeap) ChunkHeaderBytes(zoneID, chunkID uint32) []byte {
	off := h.chunkHeaderArrayBase(zoneID) + int64(chunkID)*layout.ChunkHeaderSize
	return h.m[off : off+layout.ChunkHeaderSize]
}

func (h *FileHeap) ChunkBytes(zoneID, chunkID uint32) []byte {
	off := h.chunkDataAreaBase(zoneID) + int64(chunkID)*layout.ChunkSize
	return h.m[off : off+layout.ChunkSize]
}

func (h *FileHeap) RunLock(zoneID, chunkID uint32) Locker {
	key := uint64(zoneID)<<32 | uint64(chunkID)

	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.runLocks[key]
	if !ok {
		l = &sync.Mutex{}
		h.runLocks[key] = l
	}
	return l
}

// Persist flushes addr to the backing file with an msync-equivalent call.
// addr must be a sub-slice of h.m.
func (h *FileHeap) Persist(addr []byte) {
	if len(addr) == 0 {
		return
	}
	if err := h.m.Flush(); err != nil {
		panic(fmt.Sprintf("pmemblock: persist: %v", err))
	}
}

// Locate decomposes an absolute heap offset (as produced by Offset) into a
// zone id, a chunk id within that zone's chunk-header array, and the
// residual byte offset into that chunk's data area.
func (h *FileHeap) Locate(off uint64) (zoneID, chunkID uint32, chunkOff uint64) {
	zoneID = uint32(off / layout.ZoneMaxSize)
	zoneRel := off - uint64(zoneID)*layout.ZoneMaxSize

	dataBase := uint64(h.chunkDataAreaBase(zoneID) - h.zoneBase(zoneID))
	if zoneRel < dataBase {
		panic(fmt.Sprintf("pmemblock: offset %d falls within zone %d's header area", off, zoneID))
	}

	chunkRel := zoneRel - dataBase
	chunkID = uint32(chunkRel / layout.ChunkSize)
	chunkOff = chunkRel % layout.ChunkSize
	return zoneID, chunkID, chunkOff
}

// Offset returns the file offset of the first byte of addr, which must be
// a sub-slice of h's mapped region. Useful for building the heap offset
// that memblock.FromOffset expects from an address obtained through this
// Heap (e.g. the result of a user-data pointer computation).
func (h *FileHeap) Offset(addr []byte) int64 {
	if len(addr) == 0 {
		return -1
	}
	return int64(uintptrOf(&addr[0]) - uintptrOf(&h.m[0]))
}
