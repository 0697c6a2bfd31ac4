package timing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRepetitions is the number of timed batches per run.
	DefaultRepetitions = 11
	// DefaultMinDuration is the shortest batch the calibration loop accepts.
	DefaultMinDuration = 5 * time.Millisecond
	// DefaultMaxIterations bounds the calibration loop.
	DefaultMaxIterations = 1 << 20
)

// ErrInvalidConfig is returned for a configuration the harness cannot run.
var ErrInvalidConfig = errors.New("timing: invalid configuration")

// Benchmark is the setup/measure/teardown triple driven by the harness.
// iterations is 0 for the once-per-run calls and the batch size otherwise.
type Benchmark interface {
	Setup(ctx context.Context, iterations uint64) error
	Measure(ctx context.Context, iterations uint64) error
	Teardown(ctx context.Context, iterations uint64) error
}

// Config controls repetition and parallelism.
type Config struct {
	// Parallel is the number of concurrent worker processes. Values <= 1
	// run in the calling process.
	Parallel int

	// Warmup is the number of untimed iterations run before measuring.
	Warmup uint64

	// Iterations fixes the batch size. If 0, it is calibrated.
	Iterations uint64

	// Repetitions is the number of timed batches. If 0, DefaultRepetitions.
	Repetitions int

	// MinDuration is the calibration target. If 0, DefaultMinDuration.
	MinDuration time.Duration

	// MaxIterations caps calibration. If 0, DefaultMaxIterations.
	MaxIterations uint64

	// Clock is the time source. A mock clock can be used for testing.
	Clock clock.Clock
}

func (c Config) withDefaults() Config {
	if c.Parallel < 1 {
		c.Parallel = 1
	}
	if c.Repetitions <= 0 {
		c.Repetitions = DefaultRepetitions
	}
	if c.MinDuration <= 0 {
		c.MinDuration = DefaultMinDuration
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Result is the outcome of one harness run.
type Result struct {
	// Elapsed is the time of one batch of Iterations (median, or mean of
	// worker medians when parallel).
	Elapsed time.Duration `json:"elapsed"`
	// Iterations is the batch size.
	Iterations uint64 `json:"iterations"`
	// Processes is the number of processes that measured.
	Processes int `json:"processes"`
}

// PerIteration returns Elapsed divided by Iterations.
func (r Result) PerIteration() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Iterations)
}

// Harness runs benchmarks.
type Harness struct {
	cfg      Config
	launcher Launcher
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLauncher sets how parallel workers are started.
func WithLauncher(l Launcher) Option {
	return func(h *Harness) {
		h.launcher = l
	}
}

// WithLogger sets the logger. If nil, slog.Default is used.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// New creates a Harness.
func New(cfg Config, opts ...Option) *Harness {
	h := &Harness{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the effective configuration.
func (h *Harness) Config() Config {
	return h.cfg
}

// WithIterations returns a copy of h whose batch size is fixed to n.
func (h *Harness) WithIterations(n uint64) *Harness {
	cp := *h
	cp.cfg.Iterations = n
	return &cp
}

// Run measures b. name identifies the benchmark to parallel workers.
func (h *Harness) Run(ctx context.Context, name string, b Benchmark) (Result, error) {
	if h.cfg.Parallel <= 1 {
		return h.runLocal(ctx, b)
	}
	if h.launcher == nil {
		return Result{}, fmt.Errorf("%w: parallel %d without launcher", ErrInvalidConfig, h.cfg.Parallel)
	}

	n := h.cfg.Iterations
	if n == 0 {
		var err error
		if n, err = h.calibrateOnly(ctx, b); err != nil {
			return Result{}, err
		}
	}
	return h.runParallel(ctx, Job{
		Benchmark:   name,
		Iterations:  n,
		Warmup:      h.cfg.Warmup,
		Repetitions: h.cfg.Repetitions,
	})
}

func (h *Harness) runLocal(ctx context.Context, b Benchmark) (res Result, err error) {
	if err := b.Setup(ctx, 0); err != nil {
		return Result{}, err
	}
	defer func() {
		err = errors.Join(err, b.Teardown(ctx, 0))
	}()

	if h.cfg.Warmup > 0 {
		if _, err := h.batch(ctx, b, h.cfg.Warmup); err != nil {
			return Result{}, err
		}
	}

	n := h.cfg.Iterations
	if n == 0 {
		if n, err = h.calibrate(ctx, b); err != nil {
			return Result{}, err
		}
	}

	elapsed, err := h.repeat(ctx, b, n)
	if err != nil {
		return Result{}, err
	}
	return Result{Elapsed: elapsed, Iterations: n, Processes: 1}, nil
}

func (h *Harness) calibrateOnly(ctx context.Context, b Benchmark) (n uint64, err error) {
	if err := b.Setup(ctx, 0); err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, b.Teardown(ctx, 0))
	}()
	return h.calibrate(ctx, b)
}

// calibrate doubles the batch size until one batch lasts MinDuration.
// The first batch after Setup(0) pays for cold state and is discarded.
func (h *Harness) calibrate(ctx context.Context, b Benchmark) (uint64, error) {
	d, err := h.batch(ctx, b, 1)
	if err != nil {
		return 0, err
	}
	h.logger.DebugContext(ctx, "calibration priming batch", "elapsed", d)

	n := uint64(1)
	for {
		d, err := h.batch(ctx, b, n)
		if err != nil {
			return 0, err
		}
		h.logger.DebugContext(ctx, "calibration batch", "iterations", n, "elapsed", d)
		if d >= h.cfg.MinDuration || n >= h.cfg.MaxIterations {
			return n, nil
		}
		n = min(n*2, h.cfg.MaxIterations)
	}
}

func (h *Harness) repeat(ctx context.Context, b Benchmark, n uint64) (time.Duration, error) {
	samples := make([]time.Duration, 0, h.cfg.Repetitions)
	for range h.cfg.Repetitions {
		d, err := h.batch(ctx, b, n)
		if err != nil {
			return 0, err
		}
		samples = append(samples, d)
	}
	return Median(samples), nil
}

func (h *Harness) batch(ctx context.Context, b Benchmark, n uint64) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := b.Setup(ctx, n); err != nil {
		return 0, err
	}
	start := h.cfg.Clock.Now()
	if err := b.Measure(ctx, n); err != nil {
		return 0, err
	}
	elapsed := h.cfg.Clock.Since(start)
	if err := b.Teardown(ctx, n); err != nil {
		return 0, err
	}
	return elapsed, nil
}

func (h *Harness) runParallel(ctx context.Context, job Job) (Result, error) {
	workers := make([]Worker, h.cfg.Parallel)

	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			w, err := h.launcher.Launch(ctx, job)
			if err != nil {
				return fmt.Errorf("launch worker %d: %w", i, err)
			}
			workers[i] = w
			return w.Ready()
		})
	}
	if err := g.Wait(); err != nil {
		killAll(workers)
		return Result{}, err
	}

	for i, w := range workers {
		if err := w.Start(); err != nil {
			killAll(workers)
			return Result{}, fmt.Errorf("start worker %d: %w", i, err)
		}
	}

	results := make([]Result, len(workers))
	var wg errgroup.Group
	for i, w := range workers {
		wg.Go(func() error {
			r, err := w.Wait()
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return Result{}, err
	}

	var total time.Duration
	for _, r := range results {
		total += r.Elapsed
	}
	h.logger.DebugContext(ctx, "parallel run complete", "workers", len(results), "iterations", job.Iterations)
	return Result{
		Elapsed:    total / time.Duration(len(results)),
		Iterations: job.Iterations,
		Processes:  len(results),
	}, nil
}

func killAll(workers []Worker) {
	for _, w := range workers {
		if w != nil {
			w.Kill()
		}
	}
}

// Median returns the median of samples. It does not modify samples.
func Median(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
