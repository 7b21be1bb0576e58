package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/alloc"
	"github.com/joshuapare/heapkit/internal/report"
)

var classesSize uint32

func init() {
	cmd := newClassesCmd()
	cmd.Flags().Uint32Var(&classesSize, "size", 0, "Show how this size maps to classes")
	rootCmd.AddCommand(cmd)
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "Print the size class table",
		Long: `The classes command prints the lower bound of each of the 256 size
classes. With --size it shows the class a request of that size is served from
and the class a free region of that size is filed under.

Example:
  heapctl classes
  heapctl classes --size 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("size") {
				return runClassesFor(classesSize)
			}
			return runClasses()
		},
	}
}

type classInfo struct {
	Class uint32 `json:"class"`
	Size  uint64 `json:"size"`
}

type classMapping struct {
	Size      uint32    `json:"size"`
	Request   classInfo `json:"request"`
	FreeBlock classInfo `json:"freeRegion"`
}

func runClasses() error {
	table := make([]classInfo, alloc.NumClasses)
	for c := range uint32(alloc.NumClasses) {
		table[c] = classInfo{Class: c, Size: alloc.ClassSize(c)}
	}
	if jsonOut {
		return printJSON(table)
	}
	printInfo("%5s  %15s\n", "CLASS", "SIZE")
	for _, c := range table {
		printInfo("%5d  %15s\n", c.Class, report.Bytes(c.Size))
	}
	return nil
}

func runClassesFor(size uint32) error {
	up, down := alloc.RoundUp(size), alloc.RoundDown(size)
	m := classMapping{
		Size:      size,
		Request:   classInfo{Class: up, Size: alloc.ClassSize(up)},
		FreeBlock: classInfo{Class: down, Size: alloc.ClassSize(down)},
	}
	if jsonOut {
		return printJSON(m)
	}
	printInfo("Size %s\n", report.Bytes(uint64(size)))
	printInfo("  request served from class %d (regions of at least %s bytes)\n", up, report.Bytes(m.Request.Size))
	printInfo("  free region filed under class %d (%s bytes)\n", down, report.Bytes(m.FreeBlock.Size))
	if up != down {
		printVerbose("  a free region of exactly this size cannot serve a request of this size\n")
	}
	return nil
}
