package alloc

import (
	"log/slog"
	"os"
)

// Runtime allocation tracing, controlled by the HEAPKIT_LOG_ALLOC env var.
// Only consulted when Config.Logger is nil.
var logAlloc = os.Getenv("HEAPKIT_LOG_ALLOC") != ""

func stderrLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// DebugLogAllocations writes one debug record per live allocation, in
// address order.
func (a *Allocator) DebugLogAllocations(log *slog.Logger) {
	if log == nil {
		return
	}
	err := a.VisitRegions(func(r Region) error {
		if !r.Free {
			log.Debug("live allocation",
				slog.Uint64("offset", uint64(r.Offset)),
				slog.Uint64("size", uint64(r.Size)))
		}
		return nil
	})
	if err != nil {
		log.Error("walk allocations", slog.Any("error", err))
	}
}
