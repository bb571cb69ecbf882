// Package pmemblock resolves raw persistent-memory offsets into typed
// allocation-unit descriptors and exposes a uniform operation surface
// (size, state, header I/O, locking) over huge chunks and run sub-blocks.
//
// See package memblock for the core decode/dispatch logic, package layout
// for the on-media structs it decodes, and package heap for the interfaces
// it expects from the owning heap.
package pmemblock
