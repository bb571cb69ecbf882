package memblock

import (
	"encoding/binary"
	"unsafe"

	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/layout"
)

// runKind implements kindOps for run sub-blocks: same-size allocations
// tracked by bits in the owning run chunk's bitmap.
type runKind struct{}

// RunOps is the operation vector bound to every run Descriptor.
var RunOps blockOps = shared{kindOps: runKind{}}

// runChunkBytes returns the full data area of the chunk hosting m's run:
// metadata block (block size, alignment, bitmap) followed by the run's
// allocation data.
func runChunkBytes(m *Descriptor) []byte {
	return m.Heap.ChunkBytes(m.ZoneIDField, m.ChunkIDField)
}

func runBlockSize(chunkBytes []byte) uint64 {
	return binary.LittleEndian.Uint64(chunkBytes[0:8])
}

func runAlignment(chunkBytes []byte) uint64 {
	return binary.LittleEndian.Uint64(chunkBytes[8:16])
}

func runBitmap(chunkBytes []byte) []byte {
	return chunkBytes[16:layout.RunMetaSize]
}

func runDataArea(chunkBytes []byte) []byte {
	return chunkBytes[layout.RunMetaSize:]
}

// runDataStart returns the slice of the run's data area at which
// allocations begin, accounting for ALIGNED padding: when the chunk is
// flagged ALIGNED, the padding is the smallest amount such that the
// *user* pointer — data start plus the inline header size — lands on an
// `alignment`-byte boundary, not the raw block pointer.
func runDataStart(chunkBytes []byte, flags layout.ChunkFlags, headerType layout.HeaderType, alignment uint64) []byte {
	data := runDataArea(chunkBytes)
	if flags&layout.ChunkFlagAligned == 0 || alignment == 0 {
		return data
	}
	hsize := uintptr(layout.HeaderTypeToSize[headerType])
	base := uintptr(unsafe.Pointer(&data[0])) + hsize
	aligned := alignUp(base, uintptr(alignment))
	padding := (aligned - hsize) - uintptr(unsafe.Pointer(&data[0]))
	return data[padding:]
}

// runAlignmentPadding returns the byte count runDataStart skips ahead of
// the metadata block, the value dispatch subtracts while decomposing an
// offset into a run block.
func runAlignmentPadding(chunkBytes []byte, flags layout.ChunkFlags, headerType layout.HeaderType, alignment uint64) uintptr {
	data := runDataArea(chunkBytes)
	start := runDataStart(chunkBytes, flags, headerType, alignment)
	return uintptr(unsafe.Pointer(&start[0])) - uintptr(unsafe.Pointer(&data[0]))
}

func alignUp(v, align uintptr) uintptr {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func (runKind) BlockSize(m *Descriptor) uint64 {
	return runBlockSize(runChunkBytes(m))
}

// GetRealData returns data_start(run, header_type) + block_size*block_off.
func (runKind) GetRealData(m *Descriptor) []byte {
	chunkBytes := runChunkBytes(m)
	hdr := m.chunkHeader()
	blockSize := runBlockSize(chunkBytes)
	start := runDataStart(chunkBytes, hdr.Flags, m.HeaderType, runAlignment(chunkBytes))
	return start[uint64(m.BlockOffField)*blockSize:]
}

// GetState inspects the bitmap word(s) covering [block_off, block_off +
// size_idx) and reports ALLOCATED if any covered bit is set, FREE
// otherwise — bits are inverted from common convention: set means
// allocated.
func (runKind) GetState(m *Descriptor) State {
	bitmap := runBitmap(runChunkBytes(m))
	v := m.BlockOffField / layout.BitsPerValue
	word := binary.LittleEndian.Uint64(bitmap[v*8 : v*8+8])

	b := m.BlockOffField % layout.BitsPerValue
	bLast := b + m.SizeIdx
	assertf(bLast <= layout.BitsPerValue, "run.GetState: block_off %d size_idx %d crosses a bitmap word", m.BlockOffField, m.SizeIdx)

	for i := b; i < bLast; i++ {
		if word&(1<<i) != 0 {
			return Allocated
		}
	}
	return Free
}

func (runKind) GetLock(m *Descriptor) heap.Locker {
	return m.Heap.RunLock(m.ZoneIDField, m.ChunkIDField)
}

// EnsureHeaderType is a no-op in release builds: runs are created with
// their header flavor fixed. In debug builds it asserts the run's chunk
// header already carries the flavor's flag.
func (runKind) EnsureHeaderType(m *Descriptor, t layout.HeaderType) {
	if !Debug {
		return
	}
	hdr := m.chunkHeader()
	assertf(hdr.Type == layout.ChunkTypeRun, "run.EnsureHeaderType: chunk %d/%d is not a run head (type=%v)", m.ZoneIDField, m.ChunkIDField, hdr.Type)
	want := layout.HeaderTypeToFlag[t]
	assertf(hdr.Flags&want == want, "run.EnsureHeaderType: chunk %d/%d missing flag for %v", m.ZoneIDField, m.ChunkIDField, t)
}

// PrepHdr appends a redo-log entry that flips the bits covering
// [block_off, block_off+size_idx) in the run's bitmap. There is no
// current-value read here by design: the OR/AND masks are value
// independent, so the redo log can apply them deterministically on
// replay. This makes the run mutex load-bearing — the caller MUST hold
// GetLock(m) from before this call until ctx commits, or a concurrent
// flip of the same word is lost.
func (runKind) PrepHdr(m *Descriptor, op Op, ctx heap.Context) {
	assertf(ctx != nil, "run.PrepHdr: requires a non-nil operation context")
	assertf(m.SizeIdx <= layout.BitsPerValue, "run.PrepHdr: size_idx %d exceeds bitmap word width", m.SizeIdx)

	var bmask uint64
	if m.SizeIdx == layout.BitsPerValue {
		assertf(m.BlockOffField%layout.BitsPerValue == 0, "run.PrepHdr: full-word allocation must be word-aligned, block_off=%d", m.BlockOffField)
		bmask = ^uint64(0)
	} else {
		bmask = ((uint64(1) << m.SizeIdx) - 1) << (m.BlockOffField % layout.BitsPerValue)
	}

	bpos := m.BlockOffField / layout.BitsPerValue
	bitmap := runBitmap(runChunkBytes(m))
	word := bitmap[bpos*8 : bpos*8+8]

	switch op {
	case OpAllocated:
		ctx.AddEntry(word, bmask, heap.OpOr)
	case OpFree:
		ctx.AddEntry(word, ^bmask, heap.OpAnd)
	default:
		assertf(false, "run.PrepHdr: unknown op %v", op)
	}
}
