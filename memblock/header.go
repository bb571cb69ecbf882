package memblock

import (
	"encoding/binary"
	"unsafe"

	"github.com/hanwen/go-pmemblock/layout"
	"github.com/hanwen/go-pmemblock/vmem"
)

// blockAccessor is the sliver of kindOps the header-flavor operations need:
// where the block's raw bytes start, and (for the none flavor) how big one
// unit of the block is.
type blockAccessor interface {
	GetRealData(m *Descriptor) []byte
	BlockSize(m *Descriptor) uint64
}

// headerFlavorOps is the per-flavor record from spec.md §4.1: get-size,
// get-extra, get-flags, write, invalidate, reinit. These tables are pure
// data, statically constructed and read-only — see the headerOps variable
// below.
type headerFlavorOps struct {
	GetSize    func(b blockAccessor, m *Descriptor) uint64
	GetExtra   func(b blockAccessor, m *Descriptor) uint64
	GetFlags   func(b blockAccessor, m *Descriptor) uint16
	Write      func(b blockAccessor, m *Descriptor, size uint64, extra uint64, flags uint16)
	Invalidate func(b blockAccessor, m *Descriptor)
	Reinit     func(b blockAccessor, m *Descriptor)
}

var headerOps = [layout.MaxHeaderTypes]headerFlavorOps{
	layout.HeaderLegacy:  legacyHeaderOps,
	layout.HeaderCompact: compactHeaderOps,
	layout.HeaderNone:    noneHeaderOps,
}

// --- legacy (64 B) ---

var legacyHeaderOps = headerFlavorOps{
	GetSize: func(b blockAccessor, m *Descriptor) uint64 {
		return binary.LittleEndian.Uint64(b.GetRealData(m)[0:8])
	},
	GetExtra: func(b blockAccessor, m *Descriptor) uint64 {
		return binary.LittleEndian.Uint64(b.GetRealData(m)[8:16])
	},
	GetFlags: func(b blockAccessor, m *Descriptor) uint16 {
		rootSize := binary.LittleEndian.Uint64(b.GetRealData(m)[16:24])
		return uint16(rootSize >> layout.SizeShift)
	},
	Write: func(b blockAccessor, m *Descriptor, size uint64, extra uint64, flags uint16) {
		hdrp := b.GetRealData(m)[:layout.AllocHeaderLegacySize]
		addr := uintptr(unsafe.Pointer(&hdrp[0]))

		vmem.MakeUndefined(addr, layout.AllocHeaderLegacySize)
		vmem.AddToTx(addr, layout.AllocHeaderLegacySize)

		binary.LittleEndian.PutUint64(hdrp[0:8], size)
		binary.LittleEndian.PutUint64(hdrp[8:16], extra)
		binary.LittleEndian.PutUint64(hdrp[16:24], uint64(flags)<<layout.SizeShift)
		for i := 24; i < layout.AllocHeaderLegacySize; i++ {
			hdrp[i] = 0
		}
		// write-combining, no-drain, relaxed ordering: persist is the
		// caller-visible durability point, not this store.
		persistBlock(m, hdrp)

		vmem.RemoveFromTx(addr, layout.AllocHeaderLegacySize)

		// Unused fields of the legacy header are a red zone.
		vmem.MakeNoAccess(addr+24, layout.AllocHeaderLegacySize-24)
	},
	Invalidate: func(b blockAccessor, m *Descriptor) {
		hdrp := b.GetRealData(m)[:layout.AllocHeaderLegacySize]
		vmem.SetClean(uintptr(unsafe.Pointer(&hdrp[0])), layout.AllocHeaderLegacySize)
	},
	Reinit: func(b blockAccessor, m *Descriptor) {
		hdrp := b.GetRealData(m)[:layout.AllocHeaderLegacySize]
		addr := uintptr(unsafe.Pointer(&hdrp[0]))
		vmem.MakeDefined(addr, layout.AllocHeaderLegacySize)
		vmem.MakeNoAccess(addr+24, layout.AllocHeaderLegacySize-24)
	},
}

// --- compact (16 B) ---

var compactHeaderOps = headerFlavorOps{
	GetSize: func(b blockAccessor, m *Descriptor) uint64 {
		word0 := binary.LittleEndian.Uint64(b.GetRealData(m)[0:8])
		return word0 & layout.SizeMask
	},
	GetExtra: func(b blockAccessor, m *Descriptor) uint64 {
		return binary.LittleEndian.Uint64(b.GetRealData(m)[8:16])
	},
	GetFlags: func(b blockAccessor, m *Descriptor) uint16 {
		word0 := binary.LittleEndian.Uint64(b.GetRealData(m)[0:8])
		return uint16(word0 >> layout.SizeShift)
	},
	Write: func(b blockAccessor, m *Descriptor, size uint64, extra uint64, flags uint16) {
		real := b.GetRealData(m)
		addr := uintptr(unsafe.Pointer(&real[0]))

		vmem.MakeUndefined(addr, layout.AllocHeaderCompactSize)

		// If the header address is cacheline-aligned and the real
		// (header-inclusive) size is at least one cacheline, widen
		// the write to the full cacheline: this avoids a partial-line
		// write at the cost of overwriting not-yet-written user bytes
		// that belong to this allocation. See spec.md §9.
		hdrSize := uint64(layout.AllocHeaderCompactSize)
		if addr%layout.CachelineSize == 0 && size >= layout.CachelineSize {
			hdrSize = layout.CachelineSize
		}

		vmem.AddToTx(addr, hdrSize)

		hdrp := real[:hdrSize]
		binary.LittleEndian.PutUint64(hdrp[0:8], size|(uint64(flags)<<layout.SizeShift))
		binary.LittleEndian.PutUint64(hdrp[8:16], extra)
		for i := uint64(layout.AllocHeaderCompactSize); i < hdrSize; i++ {
			hdrp[i] = 0
		}
		persistBlock(m, hdrp)

		vmem.MakeUndefined(addr+layout.AllocHeaderCompactSize, hdrSize-layout.AllocHeaderCompactSize)
		vmem.RemoveFromTx(addr, hdrSize)
	},
	Invalidate: func(b blockAccessor, m *Descriptor) {
		hdrp := b.GetRealData(m)[:layout.AllocHeaderCompactSize]
		vmem.SetClean(uintptr(unsafe.Pointer(&hdrp[0])), layout.AllocHeaderCompactSize)
	},
	Reinit: func(b blockAccessor, m *Descriptor) {
		hdrp := b.GetRealData(m)[:layout.AllocHeaderCompactSize]
		vmem.MakeDefined(uintptr(unsafe.Pointer(&hdrp[0])), layout.AllocHeaderCompactSize)
	},
}

// --- none (0 B) ---

var noneHeaderOps = headerFlavorOps{
	GetSize: func(b blockAccessor, m *Descriptor) uint64 {
		return b.BlockSize(m)
	},
	GetExtra:   func(blockAccessor, *Descriptor) uint64 { return 0 },
	GetFlags:   func(blockAccessor, *Descriptor) uint16 { return 0 },
	Write:      func(blockAccessor, *Descriptor, uint64, uint64, uint16) {},
	Invalidate: func(blockAccessor, *Descriptor) {},
	Reinit:     func(blockAccessor, *Descriptor) {},
}
