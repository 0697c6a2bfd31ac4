// Package pagefault measures the latency of a single hard page fault on a
// memory-mapped file.
//
// # Method
//
// A State maps a fault source (a regular file of at least 1 MiB) read-only
// and shared. Two bodies run over it:
//
//   - Combined: touch one byte of every page, then unmap and map again
//   - Baseline: unmap and map again, touching nothing
//
// Both share the same remap step, so subtracting the baseline from the
// combined time leaves only the cost of the touches:
//
//	per_fault = (combined - baseline) / (iterations * pages)
//
// Pages are touched in random order by default, or in ascending order with
// the Serial discipline. When /proc/sys/vm/drop_caches is writable the page
// cache is dropped once during setup and, with WithDropCache, before every
// timed batch so that faults are served from storage. Without the
// capability the run still completes; the faults are then as cold as the
// page cache allows.
//
// # Quick Start
//
//	s := pagefault.New("/data/fault-source.bin",
//	    pagefault.WithDropCache(true),
//	    pagefault.WithLogger(pagefault.NewTextLogger(slog.LevelInfo)),
//	)
//	h := timing.New(timing.Config{Repetitions: 11})
//	report, err := pagefault.NewCalibrator(s, h, timing.TextSink{W: os.Stdout}).Run(ctx)
//	if err != nil { ... }
//	fmt.Println(report.PerFault())
//
// # Parallelism
//
// The harness runs parallel measurements in separate processes, each with
// its own State. Cache drops are global, so a drop in one process also
// evicts pages another process is about to touch. Combine WithDropCache
// with WithClone when each process needs its own cold fault source.
package pagefault
