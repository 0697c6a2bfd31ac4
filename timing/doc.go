// Package timing drives a benchmark through setup, measure and teardown
// and turns the elapsed wall clock time into a Result.
//
// # Protocol
//
// A Benchmark is driven in batches. Setup(ctx, 0) and Teardown(ctx, 0) run
// once around the whole run; every timed batch of n iterations is
// bracketed by Setup(ctx, n) and Teardown(ctx, n), which run outside the
// clock. Only Measure(ctx, n) is timed.
//
//	Setup(0)
//	  warmup batch                (not recorded)
//	  calibration batches         (n doubles until a batch >= MinDuration)
//	  Repetitions timed batches   (median is reported)
//	Teardown(0)
//
// # Parallelism
//
// With Parallel > 1 the iteration count is fixed first (calibrated in
// process when not configured), then one worker per degree is started
// through a Launcher. Workers report ready after their own Setup(0) and
// start measuring together. The reported Result is the mean of the worker
// medians. ExecLauncher runs each worker as a separate OS process.
package timing
