package heap

import "unsafe"

// uintptrOf returns the address of a byte within the heap's mapped region,
// used only to recover the file offset of a slice handed back by
// ChunkHeaderBytes/ChunkBytes. It does no pointer arithmetic across
// allocations other than indexing within the same mmap'd byte slice.
func uintptrOf(b *byte) uintptr {
	return uintptr(unsafe.Pointer(b))
}
