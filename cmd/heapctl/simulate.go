package main

import (
	"os"

	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/alloc"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/report"
	"github.com/joshuapare/heapkit/region"
)

var (
	simHeap      uint32
	simMaxAllocs uint32
	simRounds    int
	simMaxSize   uint32
	simMap       bool
)

func init() {
	cmd := newSimulateCmd()
	cmd.Flags().Uint32Var(&simHeap, "heap", 16*1024*1024, "Heap size in bytes")
	cmd.Flags().Uint32Var(&simMaxAllocs, "max-allocs", 1024, "Maximum live allocations")
	cmd.Flags().IntVar(&simRounds, "rounds", 100, "Number of fill and drain rounds")
	cmd.Flags().Uint32Var(&simMaxSize, "max-size", 0, "Largest request size (default heap/max-allocs)")
	cmd.Flags().BoolVar(&simMap, "map", false, "Print the detailed heap map at the last peak and exit")
	rootCmd.AddCommand(cmd)
}

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run a randomized fill and drain workload",
		Long: `The simulate command maps a heap, fills it with random-sized
allocations until the allocator refuses one or the allocation limit is
reached, then frees everything in random order. Every block is stamped on
allocation and checked before it is freed, so overlapping ranges are
detected. After all rounds the heap must be a single free region again.

Example:
  heapctl simulate
  heapctl simulate --heap 268435456 --max-allocs 100 --rounds 1000
  heapctl simulate --rounds 1 --map`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate()
		},
	}
}

type simResult struct {
	HeapSize     uint32 `json:"heapSize"`
	MaxAllocs    uint32 `json:"maxAllocs"`
	Rounds       int    `json:"rounds"`
	MaxSize      uint32 `json:"maxSize"`
	Allocations  int    `json:"allocations"`
	Failures     int    `json:"failures"`
	Splits       int    `json:"splits"`
	Merges       int    `json:"merges"`
	PeakLive     int    `json:"peakLive"`
	AvgFillBytes uint64 `json:"avgFillBytes"`
	// FreeAtPeak and LargestAtPeak describe the last round at its fullest.
	FreeAtPeak    uint32 `json:"freeAtPeak"`
	LargestAtPeak uint32 `json:"largestAtPeak"`
}

func runSimulate() error {
	if simRounds < 1 {
		return errors.Newf("rounds must be positive, got %d", simRounds)
	}
	if simMaxAllocs == 0 {
		return errors.New("max-allocs must be positive")
	}
	maxSize := simMaxSize
	if maxSize == 0 {
		maxSize = max(simHeap/simMaxAllocs, 1)
	}

	r, err := region.Open(simHeap, simMaxAllocs)
	if err != nil {
		return err
	}
	defer r.Close()

	a := r.Allocator()
	a.SetLogger(logger.L)
	printVerbose("Mapped %s byte heap, %s byte allocator block\n",
		report.Bytes(uint64(simHeap)), report.Bytes(uint64(len(a.Block()))))

	res := simResult{HeapSize: simHeap, MaxAllocs: simMaxAllocs, Rounds: simRounds, MaxSize: maxSize}
	live := make([]region.Block, 0, simMaxAllocs)
	var filled uint64

	for round := range simRounds {
		for len(live) < int(simMaxAllocs) {
			blk, err := r.Alloc(1 + fastrand.Uint32n(maxSize))
			if errors.Is(err, alloc.ErrOutOfSpace) {
				break
			}
			if err != nil {
				return err
			}
			stamp(blk)
			live = append(live, blk)
		}

		peak := a.StorageReport()
		filled += uint64(simHeap - peak.TotalFreeSpace)
		res.FreeAtPeak = peak.TotalFreeSpace
		res.LargestAtPeak = peak.LargestFreeRegion
		logger.Debug("round filled",
			"round", round,
			"live", len(live),
			"free", peak.TotalFreeSpace,
			"largest", peak.LargestFreeRegion)

		if simMap && round == simRounds-1 {
			data, err := a.WriteDetailedMap()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		}

		shuffle(live)
		for _, blk := range live {
			if err := checkStamp(blk); err != nil {
				return errors.Wrapf(err, "round %d", round)
			}
			if err := r.Free(blk); err != nil {
				return errors.Wrapf(err, "round %d", round)
			}
		}
		live = live[:0]
	}

	if err := a.Validate(); err != nil {
		return err
	}
	if end := a.StorageReport(); end.TotalFreeSpace != simHeap {
		return errors.Newf("heap not fully free after drain: %d of %d bytes", end.TotalFreeSpace, simHeap)
	}

	stats := a.Stats()
	res.Allocations = stats.AllocCalls - stats.AllocFailures
	res.Failures = stats.AllocFailures
	res.Splits = stats.SplitCount
	res.Merges = stats.MergeBackward + stats.MergeForward
	res.PeakLive = stats.PeakAllocCount
	res.AvgFillBytes = filled / uint64(simRounds)

	if jsonOut {
		return printJSON(res)
	}

	printInfo("Rounds:         %d\n", res.Rounds)
	printInfo("Allocations:    %s (%s refused)\n", report.Bytes(uint64(res.Allocations)), report.Bytes(uint64(res.Failures)))
	printInfo("Peak live:      %d\n", res.PeakLive)
	printInfo("Average fill:   %s bytes\n", report.Bytes(res.AvgFillBytes))
	printVerbose("Splits:         %s\n", report.Bytes(uint64(res.Splits)))
	printVerbose("Merges:         %s\n", report.Bytes(uint64(res.Merges)))
	if !quiet {
		printInfo("\nLast round at peak:\n")
		return report.FormatStorage(os.Stdout, alloc.StorageReport{
			TotalFreeSpace:    res.FreeAtPeak,
			LargestFreeRegion: res.LargestAtPeak,
		}, simHeap)
	}
	return nil
}

// stamp marks the first and last byte of a block with its node index.
func stamp(b region.Block) {
	if len(b.Data) == 0 {
		return
	}
	b.Data[0] = byte(b.Metadata)
	b.Data[len(b.Data)-1] = byte(b.Metadata)
}

func checkStamp(b region.Block) error {
	if len(b.Data) == 0 {
		return nil
	}
	want := byte(b.Metadata)
	if b.Data[0] != want || b.Data[len(b.Data)-1] != want {
		return errors.Newf("block %s of %d bytes was overwritten by another allocation", b.Allocation, len(b.Data))
	}
	return nil
}

func shuffle(blocks []region.Block) {
	for i := len(blocks) - 1; i > 0; i-- {
		j := int(fastrand.Uint32n(uint32(i + 1)))
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
}
