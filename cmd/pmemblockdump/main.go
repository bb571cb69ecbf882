// Command pmemblockdump opens a heap file and decodes the block at a
// given offset, printing its addressing, header flavor and allocation
// state.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hanwen/go-pmemblock/heap"
	"github.com/hanwen/go-pmemblock/memblock"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	zones := flag.Uint("zones", 1, "number of zones the heap file holds")
	chunks := flag.Uint("chunks", 1024, "number of chunks per zone")
	offset := flag.Uint64("offset", 0, "heap-relative user-data pointer of the block to decode (the offset get_user_data would return, not the header-inclusive block start)")
	size := flag.Uint64("size", 0, "if nonzero, compute size_idx for an allocation of this many bytes instead of reading it from metadata")
	debug := flag.Bool("debug", false, "enable memblock assertions")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] HEAPFILE\n\noptions:\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	memblock.Debug = *debug

	h, err := heap.OpenFileHeap(flag.Arg(0), uint32(*zones), uint32(*chunks))
	if err != nil {
		logrus.WithError(err).Fatal("pmemblockdump: open heap")
	}
	defer h.Close()

	m := memblock.FromOffsetOpt(h, *offset, *size)

	fmt.Printf("kind:        %v\n", m.Kind)
	fmt.Printf("zone_id:     %d\n", m.ZoneID())
	fmt.Printf("chunk_id:    %d\n", m.ChunkID())
	fmt.Printf("block_off:   %d\n", m.BlockOff())
	fmt.Printf("size_idx:    %d\n", m.SizeIdx)
	fmt.Printf("header_type: %v\n", m.HeaderType)
	fmt.Printf("state:       %v\n", m.GetState())
	fmt.Printf("real_size:   %d\n", m.GetRealSize())
	fmt.Printf("user_size:   %d\n", m.GetUserSize())
}
