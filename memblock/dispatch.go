package memblock

import (
	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/layout"
	"github.com/sirupsen/logrus"
)

// FromOffset resolves an absolute heap offset into a Descriptor, without
// computing a size index. It is equivalent to FromOffsetOpt(h, off, 0).
func FromOffset(h heap.Heap, off uint64) Descriptor {
	return FromOffsetOpt(h, off, 0)
}

// FromOffsetOpt resolves an absolute heap offset into a Descriptor. off is
// a user-data pointer — the same offset get_user_data would return for the
// block it names: the byte immediately past the block's inline allocation
// header, not the start of its real (header-inclusive) data.
//
// If size is nonzero, SizeIdx is computed from it (the number of chunks a
// huge allocation of that size would span, or the number of bitmap bits a
// run allocation of that size would occupy) rather than taken from the
// chunk header — the caller is asking "what would a block of this size
// look like here", the question asked while preparing a new allocation
// rather than decoding an existing one.
//
// Any shape mismatch between what off/size claim and what persistent
// metadata actually holds is treated as corruption and reported through
// fatalCorruption: this subsystem has no way to recover once a caller has
// committed to an offset that does not describe a real block.
func FromOffsetOpt(h heap.Heap, off uint64, size uint64) Descriptor {
	zoneID, chunkID, chunkOff := h.Locate(off)
	hdr := heap.ChunkHeader(h, zoneID, chunkID)

	// A RUN_DATA slot is a continuation of the RUN chunk that precedes it
	// by size_idx slots; its own size_idx is a back-reference, not a
	// span.
	if hdr.Type == layout.ChunkTypeRunData {
		if hdr.SizeIdx == 0 || hdr.SizeIdx > chunkID {
			fatalCorruption("run_data chunk has an invalid back-reference", logrus.Fields{
				"zone_id": zoneID, "chunk_id": chunkID, "size_idx": hdr.SizeIdx,
			})
		}
		chunkID -= hdr.SizeIdx
		hdr = heap.ChunkHeader(h, zoneID, chunkID)
	}

	headerType := layout.HeaderTypeFromFlags(hdr.Flags)

	// off names user data; everything below works in terms of real
	// (header-inclusive) data, so undo that offset once, up front.
	hsize := uint64(layout.HeaderTypeToSize[headerType])
	if chunkOff < hsize {
		fatalCorruption("offset is closer to the chunk start than its header size", logrus.Fields{
			"zone_id": zoneID, "chunk_id": chunkID, "chunk_off": chunkOff, "header_size": hsize,
		})
	}
	chunkOff -= hsize

	m := Descriptor{
		Heap:         h,
		ZoneIDField:  zoneID,
		ChunkIDField: chunkID,
		HeaderType:   headerType,
	}

	switch hdr.Type {
	case layout.ChunkTypeRun:
		bindRun(&m, hdr, chunkOff, size)
	case layout.ChunkTypeUsed, layout.ChunkTypeFree:
		bindHuge(&m, hdr, chunkOff, size)
	default:
		fatalCorruption("offset resolves to a chunk header of unexpected type", logrus.Fields{
			"zone_id": zoneID, "chunk_id": chunkID, "chunk_type": hdr.Type.String(),
		})
	}

	return m
}

func bindHuge(m *Descriptor, hdr layout.ChunkHeader, chunkOff uint64, size uint64) {
	if chunkOff != 0 {
		fatalCorruption("huge block offset does not land on its chunk's real data start", logrus.Fields{
			"zone_id": m.ZoneIDField, "chunk_id": m.ChunkIDField, "chunk_off": chunkOff,
		})
	}

	m.Kind = Huge
	m.ops = HugeOps
	m.BlockOffField = 0
	m.SizeIdx = hdr.SizeIdx

	if size != 0 {
		idx := calcSizeIdx(layout.ChunkSize, size)
		if idx == 0 {
			fatalCorruption("huge allocation size rounds to zero chunks", logrus.Fields{"size": size})
		}
		m.SizeIdx = idx
	}
}

func bindRun(m *Descriptor, hdr layout.ChunkHeader, chunkOff uint64, size uint64) {
	m.Kind = Run
	m.ops = RunOps

	chunkBytes := m.Heap.ChunkBytes(m.ZoneIDField, m.ChunkIDField)
	blockSize := runBlockSize(chunkBytes)
	alignment := runAlignment(chunkBytes)
	if blockSize == 0 {
		fatalCorruption("run chunk has a zero block size", logrus.Fields{
			"zone_id": m.ZoneIDField, "chunk_id": m.ChunkIDField,
		})
	}

	padding := runAlignmentPadding(chunkBytes, hdr.Flags, m.HeaderType, alignment)
	dataBase := uint64(layout.RunMetaSize) + uint64(padding)
	if chunkOff < dataBase {
		fatalCorruption("offset lands inside a run's metadata block", logrus.Fields{
			"zone_id": m.ZoneIDField, "chunk_id": m.ChunkIDField, "chunk_off": chunkOff,
		})
	}

	dataOff := chunkOff - dataBase
	if dataOff%blockSize != 0 {
		fatalCorruption("run offset is not block-size aligned", logrus.Fields{
			"zone_id": m.ZoneIDField, "chunk_id": m.ChunkIDField, "data_off": dataOff, "block_size": blockSize,
		})
	}

	m.BlockOffField = uint32(dataOff / blockSize)

	if size != 0 {
		idx := calcSizeIdx(blockSize, size)
		if idx == 0 || idx > layout.BitsPerValue {
			fatalCorruption("run allocation size does not fit in one bitmap word", logrus.Fields{
				"size": size, "block_size": blockSize, "size_idx": idx,
			})
		}
		m.SizeIdx = idx
	}
}

// calcSizeIdx returns the number of unit-sized blocks needed to hold size
// bytes, rounding up. Callers only invoke this for a nonzero size.
func calcSizeIdx(unit, size uint64) uint32 {
	return uint32((size + unit - 1) / unit)
}

// RebuildState fills in m's HeaderType, Kind and operation vector from its
// already-populated zone/chunk identity. It is used when a Descriptor's
// addressing triple (zone, chunk, block offset, size index) was recovered
// by some other means than FromOffset — e.g. read back out of an
// allocation class's free list — and only needs its dispatch rebound
// against the current chunk header.
func RebuildState(h heap.Heap, m *Descriptor) {
	m.Heap = h
	hdr := heap.ChunkHeader(h, m.ZoneIDField, m.ChunkIDField)
	m.HeaderType = layout.HeaderTypeFromFlags(hdr.Flags)

	switch hdr.Type {
	case layout.ChunkTypeRun:
		m.Kind = Run
		m.ops = RunOps
	case layout.ChunkTypeUsed, layout.ChunkTypeFree:
		m.Kind = Huge
		m.ops = HugeOps
	default:
		fatalCorruption("chunk header has an unexpected type during state rebuild", logrus.Fields{
			"zone_id": m.ZoneIDField, "chunk_id": m.ChunkIDField, "chunk_type": hdr.Type.String(),
		})
	}
}
