package memblock

import (
	"testing"

	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/layout"
)

func TestRunFreshBitmapIsAllFree(t *testing.T) {
	h := newHeap(t)
	setupRun(t, h, 0, 1, layout.HeaderNone, 64, false, 0)

	for _, off := range []uint32{0, 5, 63} {
		m := newRunDescriptor(h, 0, 1, layout.HeaderNone, off, 1)
		if got := m.GetState(); got != Free {
			t.Errorf("block_off %d: state = %v, want free", off, got)
		}
	}
}

func TestRunAllocateAndFreeSingleBit(t *testing.T) {
	h := newHeap(t)
	setupRun(t, h, 0, 1, layout.HeaderNone, 64, false, 0)
	m := newRunDescriptor(h, 0, 1, layout.HeaderNone, 5, 1)

	ctx := heap.NewMemContext()
	m.PrepHdr(OpAllocated, ctx)
	ctx.Commit()
	if got := m.GetState(); got != Allocated {
		t.Fatalf("after allocate: state = %v, want allocated", got)
	}

	// A neighboring bit in the same word must be untouched.
	neighbor := newRunDescriptor(h, 0, 1, layout.HeaderNone, 6, 1)
	if got := neighbor.GetState(); got != Free {
		t.Fatalf("neighbor bit disturbed: state = %v, want free", got)
	}

	freeCtx := heap.NewMemContext()
	m.PrepHdr(OpFree, freeCtx)
	freeCtx.Commit()
	if got := m.GetState(); got != Free {
		t.Fatalf("after free: state = %v, want free", got)
	}
}

func TestRunAllocateMultiBitRun(t *testing.T) {
	h := newHeap(t)
	setupRun(t, h, 0, 1, layout.HeaderNone, 64, false, 0)
	m := newRunDescriptor(h, 0, 1, layout.HeaderNone, 10, 4)

	ctx := heap.NewMemContext()
	m.PrepHdr(OpAllocated, ctx)
	ctx.Commit()

	for off := uint32(10); off < 14; off++ {
		d := newRunDescriptor(h, 0, 1, layout.HeaderNone, off, 1)
		if got := d.GetState(); got != Allocated {
			t.Errorf("block_off %d: state = %v, want allocated", off, got)
		}
	}
	before := newRunDescriptor(h, 0, 1, layout.HeaderNone, 9, 1)
	after := newRunDescriptor(h, 0, 1, layout.HeaderNone, 14, 1)
	if got := before.GetState(); got != Free {
		t.Errorf("block_off 9: state = %v, want free", got)
	}
	if got := after.GetState(); got != Free {
		t.Errorf("block_off 14: state = %v, want free", got)
	}
}

func TestRunFullWordAllocation(t *testing.T) {
	h := newHeap(t)
	setupRun(t, h, 0, 2, layout.HeaderNone, 64, false, 0)
	m := newRunDescriptor(h, 0, 2, layout.HeaderNone, 64, layout.BitsPerValue)

	ctx := heap.NewMemContext()
	m.PrepHdr(OpAllocated, ctx)
	ctx.Commit()

	chunkBytes := h.ChunkBytes(0, 2)
	bitmap := runBitmap(chunkBytes)
	word := bitmap[8:16]
	for _, b := range word {
		if b != 0xFF {
			t.Fatalf("second bitmap word not fully set: %x", word)
		}
	}

	// The first word, covering unrelated bits, is untouched.
	firstWord := bitmap[0:8]
	for _, b := range firstWord {
		if b != 0 {
			t.Fatalf("first bitmap word disturbed by full-word allocation: %x", firstWord)
		}
	}
}

func TestRunFullWordAllocationRequiresAlignment(t *testing.T) {
	old := Debug
	Debug = true
	defer func() { Debug = old }()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a misaligned full-word allocation")
		}
	}()

	h := newHeap(t)
	setupRun(t, h, 0, 1, layout.HeaderNone, 64, false, 0)
	m := newRunDescriptor(h, 0, 1, layout.HeaderNone, 3, layout.BitsPerValue)
	m.PrepHdr(OpAllocated, heap.NewMemContext())
}

func TestRunPrepHdrRequiresContext(t *testing.T) {
	old := Debug
	Debug = true
	defer func() { Debug = old }()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a nil operation context")
		}
	}()

	h := newHeap(t)
	setupRun(t, h, 0, 1, layout.HeaderNone, 64, false, 0)
	m := newRunDescriptor(h, 0, 1, layout.HeaderNone, 0, 1)
	m.PrepHdr(OpAllocated, nil)
}

func TestRunGetLockIdentityMatchesHeap(t *testing.T) {
	h := newHeap(t)
	setupRun(t, h, 0, 1, layout.HeaderNone, 64, false, 0)
	m := newRunDescriptor(h, 0, 1, layout.HeaderNone, 0, 1)

	if m.GetLock() != h.RunLock(0, 1) {
		t.Fatalf("run GetLock did not delegate to heap.RunLock")
	}
}
