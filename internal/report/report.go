// Package report formats allocator reports for terminal output.
package report

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/heapkit/alloc"
)

var printer = message.NewPrinter(language.English)

// FormatStorage writes a summary of a storage report for a heap of the given
// size.
func FormatStorage(w io.Writer, r alloc.StorageReport, size uint32) error {
	used := uint64(size) - uint64(r.TotalFreeSpace)
	pct := 0.0
	if size > 0 {
		pct = float64(used) / float64(size) * 100
	}
	_, err := printer.Fprintf(w,
		"Heap size:      %d bytes\n"+
			"Used:           %d bytes (%.1f%%)\n"+
			"Free:           %d bytes\n"+
			"Largest free:   %d bytes\n",
		size, used, pct, r.TotalFreeSpace, r.LargestFreeRegion)
	return err
}

// FormatClasses writes one line per size class with its lower bound and free
// region count. With nonEmptyOnly, classes without free regions are skipped.
func FormatClasses(w io.Writer, r alloc.StorageReportFull, nonEmptyOnly bool) error {
	if _, err := printer.Fprintf(w, "%5s  %15s  %7s\n", "CLASS", "SIZE", "REGIONS"); err != nil {
		return err
	}
	for class, c := range r.FreeRegions {
		if nonEmptyOnly && c.Count == 0 {
			continue
		}
		if _, err := printer.Fprintf(w, "%5d  %15d  %7d\n", class, c.Size, c.Count); err != nil {
			return err
		}
	}
	return nil
}

// Bytes formats n with English digit grouping.
func Bytes(n uint64) string {
	return printer.Sprintf("%d", n)
}
