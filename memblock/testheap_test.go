package memblock

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/layout"
)

// newHeap returns a freshly zeroed FileHeap with one zone of 16 chunks,
// closed automatically at test end.
func newHeap(t *testing.T) *heap.FileHeap {
	t.Helper()
	path := filepath.Join(t.TempDir(), "heap.pmem")
	h, err := heap.OpenFileHeap(path, 1, 16)
	if err != nil {
		t.Fatalf("OpenFileHeap: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// newHugeDescriptor builds a Descriptor for a huge block without going
// through FromOffset, for tests that exercise one kindOps method in
// isolation.
func newHugeDescriptor(h heap.Heap, zoneID, chunkID uint32, headerType layout.HeaderType) Descriptor {
	return Descriptor{
		Heap:         h,
		ZoneIDField:  zoneID,
		ChunkIDField: chunkID,
		HeaderType:   headerType,
		Kind:         Huge,
		ops:          HugeOps,
	}
}

// newRunDescriptor builds a Descriptor for a run sub-block directly.
func newRunDescriptor(h heap.Heap, zoneID, chunkID uint32, headerType layout.HeaderType, blockOff, sizeIdx uint32) Descriptor {
	return Descriptor{
		Heap:          h,
		ZoneIDField:   zoneID,
		ChunkIDField:  chunkID,
		BlockOffField: blockOff,
		SizeIdx:       sizeIdx,
		HeaderType:    headerType,
		Kind:          Run,
		ops:           RunOps,
	}
}

// setupRun writes a run chunk header and its metadata block (block size,
// alignment, zeroed bitmap) at (zoneID, chunkID).
func setupRun(t *testing.T, h *heap.FileHeap, zoneID, chunkID uint32, headerType layout.HeaderType, blockSize uint64, aligned bool, alignment uint64) {
	t.Helper()
	flags := layout.HeaderTypeToFlag[headerType]
	if aligned {
		flags |= layout.ChunkFlagAligned
	}
	heap.PutChunkHeader(h, zoneID, chunkID, layout.ChunkHeader{Type: layout.ChunkTypeRun, Flags: flags})

	chunkBytes := h.ChunkBytes(zoneID, chunkID)
	binary.LittleEndian.PutUint64(chunkBytes[0:8], blockSize)
	binary.LittleEndian.PutUint64(chunkBytes[8:16], alignment)
	for i := 16; i < layout.RunMetaSize; i++ {
		chunkBytes[i] = 0
	}
}
