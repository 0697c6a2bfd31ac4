// Package resource accounts for the memory a benchmark run allocates and
// throttles the IO it performs outside the timed region.
//
//	┌──────────────────────────────────────────────┐
//	│                  Controller                  │
//	├──────────────────────┬───────────────────────┤
//	│  Memory Limit        │  IO Rate Limiter      │
//	│  (fail-fast)         │  (token bucket)       │
//	├──────────────────────┼───────────────────────┤
//	│  AcquireMemory       │  AcquireIO            │
//	│  ReleaseMemory       │  RateLimitedReader    │
//	│  MemoryUsage         │                       │
//	└──────────────────────┴───────────────────────┘
//
// # Memory
//
// The access sequence and residency vectors grow with the fault source, so
// a run reserves their size up front. AcquireMemory is non-blocking and
// returns ErrMemoryLimitExceeded when the reservation does not fit:
//
//	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 30})
//	if err := rc.AcquireMemory(int64(pages) * 8); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(int64(pages) * 8)
//
// # IO
//
// Cloning a multi-gigabyte fault source in several processes at once can
// evict the page cache of unrelated workloads. The token bucket limits how
// fast clones are read:
//
//	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 256 << 20})
//	r := resource.NewRateLimitedReader(ctx, file, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
