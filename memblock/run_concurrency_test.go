package memblock

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/layout"
)

// TestRunConcurrentAllocationsSerializedByLock allocates every bit of a
// single bitmap word from a pool of goroutines, each holding the run's
// lock only around its own read-modify-write. If PrepHdr's lack of a
// read-modify-write (it only ever OR/AND a value-independent mask) were
// ever changed to read-then-write without the lock, this test would start
// losing updates under -race.
func TestRunConcurrentAllocationsSerializedByLock(t *testing.T) {
	h := newHeap(t)
	setupRun(t, h, 0, 1, layout.HeaderNone, 64, false, 0)

	var g errgroup.Group
	for off := uint32(0); off < layout.BitsPerValue; off++ {
		off := off
		g.Go(func() error {
			m := newRunDescriptor(h, 0, 1, layout.HeaderNone, off, 1)
			lock := m.GetLock()
			lock.Lock()
			defer lock.Unlock()

			ctx := heap.NewMemContext()
			m.PrepHdr(OpAllocated, ctx)
			ctx.Commit()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup.Wait: %v", err)
	}

	chunkBytes := h.ChunkBytes(0, 1)
	word := runBitmap(chunkBytes)[0:8]
	for _, b := range word {
		if b != 0xFF {
			t.Fatalf("bitmap word after concurrent allocation = %x, want all bits set", word)
		}
	}
}
