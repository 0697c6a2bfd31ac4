package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/hupe1980/pagefault"
	"github.com/hupe1980/pagefault/internal/resource"
	"github.com/hupe1980/pagefault/timing"
)

// Replaced in tests.
var (
	newClock     = clock.New
	stateOptions []pagefault.Option
)

type cliFlags struct {
	clone       bool
	dropCache   bool
	serial      bool
	verbose     bool
	parallel    int
	warmup      uint64
	iterations  uint64
	repetitions int
	jsonLogs    bool
	cloneRate   string
	memoryLimit string

	// Set by the parent when it re-executes itself as a parallel worker.
	worker           string
	workerIterations uint64
	runID            string
}

func newRootCmd() *cobra.Command {
	f := &cliFlags{}

	cmd := &cobra.Command{
		Use:   "lat_pagefault [flags] file",
		Short: "Measure hard page fault latency on a memory-mapped file",
		Long: `lat_pagefault maps file read-only, touches one byte of every page and
remaps, then subtracts the cost of remapping alone. The result is the time
of one page fault in microseconds.

Drop the page cache (-D, needs write access to /proc/sys/vm/drop_caches) or
use a file larger than memory, otherwise most faults are served from the
page cache.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.parallel <= 0 {
				return fmt.Errorf("invalid parallelism %d: must be positive", f.parallel)
			}
			if f.repetitions < 0 {
				return fmt.Errorf("invalid repetitions %d", f.repetitions)
			}
			cmd.SilenceUsage = true
			return run(cmd, f, args[0])
		},
	}

	fl := cmd.Flags()
	fl.BoolVarP(&f.clone, "clone", "C", false, "map a private copy of file in every process")
	fl.BoolVarP(&f.dropCache, "drop-cache", "D", false, "drop the page cache before every timed batch")
	fl.BoolVarP(&f.serial, "serial", "S", false, "touch pages in ascending order instead of randomly")
	fl.BoolVarP(&f.verbose, "verbose", "V", false, "log diagnostics and page residency after every cache drop")
	fl.IntVarP(&f.parallel, "parallel", "P", 1, "number of concurrent processes")
	fl.Uint64VarP(&f.warmup, "warmup", "W", 0, "untimed iterations before measuring")
	fl.Uint64VarP(&f.iterations, "iterations", "N", 0, "fix the iteration count per batch instead of calibrating it")
	fl.IntVar(&f.repetitions, "repetitions", timing.DefaultRepetitions, "timed batches per body")
	fl.BoolVar(&f.jsonLogs, "json-logs", false, "write logs as JSON")
	fl.StringVar(&f.cloneRate, "clone-rate", "", "limit clone reads to this many bytes per second, e.g. 256MiB")
	fl.StringVar(&f.memoryLimit, "memory-limit", "", "fail when the access sequence needs more than this, e.g. 1GiB")

	fl.StringVar(&f.worker, "worker", "", "run as a parallel worker for the named body")
	fl.Uint64Var(&f.workerIterations, "worker-iterations", 0, "fixed batch size of a parallel worker")
	fl.StringVar(&f.runID, "run-id", "", "run identifier shared with the parent process")
	for _, name := range []string{"worker", "worker-iterations", "run-id"} {
		_ = fl.MarkHidden(name)
	}

	return cmd
}

func run(cmd *cobra.Command, f *cliFlags, path string) error {
	ctx := cmd.Context()

	if f.runID == "" {
		f.runID = xid.New().String()
	}
	logger := newLogger(f).WithRunID(f.runID)

	rc, err := newResourceController(f)
	if err != nil {
		return err
	}

	discipline := pagefault.Random
	if f.serial {
		discipline = pagefault.Serial
	}
	opts := []pagefault.Option{
		pagefault.WithClone(f.clone),
		pagefault.WithDropCache(f.dropCache),
		pagefault.WithDiscipline(discipline),
		pagefault.WithVerbose(f.verbose),
		pagefault.WithLogger(logger),
		pagefault.WithResourceController(rc),
	}
	s := pagefault.New(path, append(opts, stateOptions...)...)
	atexit.Register(func() {
		_ = s.Teardown(context.Background(), 0)
	})

	cfg := timing.Config{
		Parallel:    f.parallel,
		Warmup:      f.warmup,
		Iterations:  f.iterations,
		Repetitions: f.repetitions,
		Clock:       newClock(),
	}

	if f.worker != "" {
		return serveWorker(ctx, s, f, cfg)
	}

	h := timing.New(cfg,
		timing.WithLogger(logger.Logger),
		timing.WithLauncher(&timing.ExecLauncher{
			Args:   workerArgs(f, path),
			Stderr: cmd.ErrOrStderr(),
		}),
	)

	report, err := pagefault.NewCalibrator(s, h, timing.TextSink{W: cmd.OutOrStdout()}).Run(ctx)
	if errors.Is(err, pagefault.ErrNegativeDelta) {
		return fmt.Errorf("%w: mapping cost %v exceeds combined cost %v, rerun with a larger file or -D",
			pagefault.ErrNegativeDelta, report.Baseline, report.Combined)
	}
	return err
}

func serveWorker(ctx context.Context, s *pagefault.State, f *cliFlags, cfg timing.Config) error {
	body, err := pagefault.ParseBody(f.worker)
	if err != nil {
		return err
	}
	job := timing.Job{
		Benchmark:   body.String(),
		Iterations:  f.workerIterations,
		Warmup:      f.warmup,
		Repetitions: f.repetitions,
	}
	return timing.ServeWorker(ctx, s.Benchmark(body), job, cfg, os.Stdin, os.Stdout)
}

// workerArgs rebuilds the command line for a worker running job.
func workerArgs(f *cliFlags, path string) func(timing.Job) []string {
	return func(job timing.Job) []string {
		args := []string{
			"--worker", job.Benchmark,
			"--worker-iterations", strconv.FormatUint(job.Iterations, 10),
			"--warmup", strconv.FormatUint(job.Warmup, 10),
			"--repetitions", strconv.Itoa(job.Repetitions),
			"--run-id", f.runID,
		}
		if f.clone {
			args = append(args, "--clone")
		}
		if f.dropCache {
			args = append(args, "--drop-cache")
		}
		if f.serial {
			args = append(args, "--serial")
		}
		if f.verbose {
			args = append(args, "--verbose")
		}
		if f.jsonLogs {
			args = append(args, "--json-logs")
		}
		if f.cloneRate != "" {
			args = append(args, "--clone-rate", f.cloneRate)
		}
		if f.memoryLimit != "" {
			args = append(args, "--memory-limit", f.memoryLimit)
		}
		return append(args, "--", path)
	}
}

// newResourceController returns nil when no limit is set.
func newResourceController(f *cliFlags) (*resource.Controller, error) {
	if f.cloneRate == "" && f.memoryLimit == "" {
		return nil, nil
	}
	var cfg resource.Config
	if f.cloneRate != "" {
		rate, err := parseBytes("clone-rate", f.cloneRate)
		if err != nil {
			return nil, err
		}
		cfg.IOLimitBytesPerSec = rate
	}
	if f.memoryLimit != "" {
		limit, err := parseBytes("memory-limit", f.memoryLimit)
		if err != nil {
			return nil, err
		}
		cfg.MemoryLimitBytes = limit
	}
	return resource.NewController(cfg), nil
}

func parseBytes(flag, value string) (int64, error) {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", flag, value, err)
	}
	if n == 0 || n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid --%s %q: out of range", flag, value)
	}
	return int64(n), nil
}

func newLogger(f *cliFlags) *pagefault.Logger {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	if f.jsonLogs {
		return pagefault.NewJSONLogger(level)
	}
	return pagefault.NewTextLogger(level)
}
