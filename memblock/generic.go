package memblock

import (
	"unsafe"

	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/layout"
	"github.com/hanwen/go-pmemblock/vmem"
)

// kindOps is the part of the operation vector that differs between huge
// chunks and run sub-blocks: addressing, state, locking, header-flavor
// enforcement, and header preparation for a pending commit.
type kindOps interface {
	BlockSize(m *Descriptor) uint64
	GetRealData(m *Descriptor) []byte
	GetState(m *Descriptor) State
	GetLock(m *Descriptor) heap.Locker
	EnsureHeaderType(m *Descriptor, t layout.HeaderType)
	PrepHdr(m *Descriptor, op Op, ctx heap.Context)
}

// blockOps is the full per-instance operation vector bound to a Descriptor
// by RebuildState/FromOffset: kindOps plus the operations shared across
// both block kinds, all of which only need BlockSize and GetRealData plus
// the header-flavor table to be implemented.
type blockOps interface {
	kindOps

	GetUserData(m *Descriptor) []byte
	GetRealSize(m *Descriptor) uint64
	GetUserSize(m *Descriptor) uint64
	WriteHeader(m *Descriptor, extra uint64, flags uint16)
	Invalidate(m *Descriptor)
	ReinitHeader(m *Descriptor)
	GetExtra(m *Descriptor) uint64
	GetFlags(m *Descriptor) uint16
}

// shared implements the kind-independent half of blockOps on top of a
// kindOps implementation, exactly as the original's block_get_real_size,
// block_get_user_size, block_write_header, block_invalidate,
// block_reinit_header, block_get_extra and block_get_flags are shared by
// both entries of the mb_ops table.
type shared struct {
	kindOps
}

// GetUserData returns the address of the user-visible allocation: the raw
// block address plus the inline header's size.
func (s shared) GetUserData(m *Descriptor) []byte {
	real := s.GetRealData(m)
	hsize := int(layout.HeaderTypeToSize[m.HeaderType])
	return real[hsize:]
}

// GetRealSize returns the block's total size including its inline header.
// When SizeIdx is known (the common case, an allocation resolved with its
// index populated) it is block size times index; otherwise it falls back
// to reading the allocation header itself, which is the only route left
// when a caller resolved the block from a bare offset.
func (s shared) GetRealSize(m *Descriptor) uint64 {
	if m.SizeIdx != 0 {
		return s.BlockSize(m) * uint64(m.SizeIdx)
	}
	return headerOps[m.HeaderType].GetSize(s, m)
}

// GetUserSize returns the block's size with the inline header subtracted.
func (s shared) GetUserSize(m *Descriptor) uint64 {
	return s.GetRealSize(m) - uint64(layout.HeaderTypeToSize[m.HeaderType])
}

// WriteHeader computes the block's real size via the GetRealSize rule and
// delegates the actual write to the header flavor's operations.
func (s shared) WriteHeader(m *Descriptor, extra uint64, flags uint16) {
	headerOps[m.HeaderType].Write(s, m, s.GetRealSize(m), extra, flags)
}

// Invalidate marks the user bytes and header as clean for instrumentation,
// then delegates to the flavor's invalidate.
func (s shared) Invalidate(m *Descriptor) {
	if data := s.GetUserData(m); len(data) > 0 {
		vmem.SetClean(uintptr(unsafe.Pointer(&data[0])), uintptr(s.GetUserSize(m)))
	}
	headerOps[m.HeaderType].Invalidate(s, m)
}

// ReinitHeader delegates to the flavor's reinit, called during heap-open.
func (s shared) ReinitHeader(m *Descriptor) {
	headerOps[m.HeaderType].Reinit(s, m)
}

// GetExtra delegates to the flavor's get_extra.
func (s shared) GetExtra(m *Descriptor) uint64 {
	return headerOps[m.HeaderType].GetExtra(s, m)
}

// GetFlags delegates to the flavor's get_flags.
func (s shared) GetFlags(m *Descriptor) uint16 {
	return headerOps[m.HeaderType].GetFlags(s, m)
}
