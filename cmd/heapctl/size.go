package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/alloc"
	"github.com/joshuapare/heapkit/internal/report"
)

var sizeMaxAllocs uint32

func init() {
	cmd := newSizeCmd()
	cmd.Flags().Uint32Var(&sizeMaxAllocs, "max-allocs", alloc.DefaultMaxAllocs, "Maximum live allocations")
	rootCmd.AddCommand(cmd)
}

func newSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the allocator block size for an allocation limit",
		Long: `The size command prints how many bytes of caller memory an allocator
needs for its control block, node pool and free-node stack. The result does
not depend on the heap size.

Example:
  heapctl size
  heapctl size --max-allocs 1024 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSize()
		},
	}
}

type sizeResult struct {
	MaxAllocs uint32 `json:"maxAllocs"`
	Bytes     int    `json:"bytes"`
}

func runSize() error {
	res := sizeResult{MaxAllocs: sizeMaxAllocs, Bytes: alloc.CalculateAllocatorSize(sizeMaxAllocs)}
	if jsonOut {
		return printJSON(res)
	}
	printInfo("Allocator block for %s allocations: %s bytes\n",
		report.Bytes(uint64(res.MaxAllocs)), report.Bytes(uint64(res.Bytes)))
	return nil
}
