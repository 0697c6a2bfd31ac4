package pagefault

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/pagefault/internal/hostinfo"
	"github.com/hupe1980/pagefault/timing"
)

// Report is the outcome of a calibrated measurement.
type Report struct {
	File       string
	PageSize   int
	PageCount  int
	Iterations uint64
	Processes  int
	// Combined and Baseline are the times of one batch of Iterations.
	Combined   time.Duration
	Baseline   time.Duration
	Discipline Discipline
	DropCache  bool
	Clone      bool
}

// Delta returns the time attributed to faults: Combined - Baseline.
func (r Report) Delta() time.Duration {
	return r.Combined - r.Baseline
}

// Faults returns the number of pages touched in one batch.
func (r Report) Faults() uint64 {
	return r.Iterations * uint64(r.PageCount)
}

// PerFaultNanos returns Delta / (Iterations * PageCount) in nanoseconds.
func (r Report) PerFaultNanos() float64 {
	faults := r.Faults()
	if faults == 0 {
		return 0
	}
	return float64(r.Delta().Nanoseconds()) / float64(faults)
}

// PerFault returns PerFaultNanos rounded to a Duration.
func (r Report) PerFault() time.Duration {
	return time.Duration(math.Round(r.PerFaultNanos()))
}

// MetricName is the name the result is reported under.
func (r Report) MetricName() string {
	return "Pagefaults on " + r.File
}

// Calibrate subtracts the baseline from the combined result. Both results
// are expected to cover the same iteration count; a baseline over a
// different count is rescaled first. A negative delta is returned together
// with ErrNegativeDelta so the caller can flag the run.
func Calibrate(combined, baseline timing.Result, pageCount int) (Report, error) {
	if combined.Iterations == 0 {
		return Report{}, errors.New("calibrate: combined result has no iterations")
	}

	base := baseline.Elapsed
	if baseline.Iterations != combined.Iterations && baseline.Iterations > 0 {
		base = time.Duration(float64(baseline.Elapsed) * float64(combined.Iterations) / float64(baseline.Iterations))
	}

	r := Report{
		PageCount:  pageCount,
		Iterations: combined.Iterations,
		Processes:  combined.Processes,
		Combined:   combined.Elapsed,
		Baseline:   base,
	}
	if r.Delta() < 0 {
		return r, fmt.Errorf("%w: combined %v, baseline %v over %d iterations",
			ErrNegativeDelta, r.Combined, r.Baseline, r.Iterations)
	}
	return r, nil
}

// Calibrator runs both bodies of a State through a harness and reports
// the per-fault time.
type Calibrator struct {
	state   *State
	harness *timing.Harness
	sink    timing.Sink
	logger  *Logger
}

// NewCalibrator creates a Calibrator. The harness decides iteration count,
// repetitions and parallelism; the sink receives the final metric.
func NewCalibrator(s *State, h *timing.Harness, sink timing.Sink) *Calibrator {
	return &Calibrator{
		state:   s,
		harness: h,
		sink:    sink,
		logger:  s.logger,
	}
}

// Run measures the combined body, then the baseline body over the same
// iteration count, and reports (combined - baseline) / (N * pages).
func (c *Calibrator) Run(ctx context.Context) (Report, error) {
	g, err := c.state.Probe()
	if err != nil {
		return Report{}, err
	}
	c.checkHost(ctx, g)

	combined, err := c.measure(ctx, c.harness, BodyCombined)
	if err != nil {
		return Report{}, err
	}
	baseline, err := c.measure(ctx, c.harness.WithIterations(combined.Iterations), BodyBaseline)
	if err != nil {
		return Report{}, err
	}

	report, err := Calibrate(combined, baseline, g.PageCount)
	report.File = c.state.Path()
	report.PageSize = g.PageSize
	report.Discipline = c.state.opts.discipline
	report.DropCache = c.state.opts.dropCache
	report.Clone = c.state.opts.clone
	c.logger.LogReport(ctx, report, err)
	if err != nil {
		return report, err
	}

	if err := c.sink.Micro(report.MetricName(), report.Faults(), report.Delta()); err != nil {
		return report, err
	}
	return report, nil
}

func (c *Calibrator) measure(ctx context.Context, h *timing.Harness, body Body) (timing.Result, error) {
	var (
		counter *hostinfo.FaultCounter
		before  hostinfo.Faults
	)
	if c.state.opts.verbose && h.Config().Parallel <= 1 {
		if fc, err := hostinfo.Self(); err == nil {
			if before, err = fc.Read(ctx); err == nil {
				counter = fc
			}
		}
	}

	res, err := h.Run(ctx, body.String(), c.state.Benchmark(body))
	if err != nil {
		return timing.Result{}, fmt.Errorf("%s: %w", body, err)
	}

	if counter != nil {
		if after, err := counter.Read(ctx); err == nil {
			delta := after.Sub(before)
			c.logger.DebugContext(ctx, "fault counters",
				"body", body.String(),
				"major_faults", delta.Major,
				"minor_faults", delta.Minor,
			)
		}
	}
	c.logger.DebugContext(ctx, "body measured",
		"body", body.String(),
		"iterations", res.Iterations,
		"elapsed", res.Elapsed,
		"per_iteration", res.PerIteration(),
	)
	return res, nil
}

// checkHost warns when the fault source fits in free memory and nothing
// evicts it, because the faults will then mostly be soft.
func (c *Calibrator) checkHost(ctx context.Context, g Geometry) {
	m, err := hostinfo.HostMemory(ctx)
	if err != nil {
		c.logger.DebugContext(ctx, "host memory unavailable", "error", err)
		return
	}
	c.logger.DebugContext(ctx, "host memory",
		"total", humanize.IBytes(m.Total),
		"available", humanize.IBytes(m.Available),
		"cached", humanize.IBytes(m.Cached),
	)
	if !c.state.opts.dropCache && uint64(g.Size) < m.Available {
		c.logger.WarnContext(ctx, "fault source fits in available memory without cache dropping",
			"size", humanize.IBytes(uint64(g.Size)),
			"available", humanize.IBytes(m.Available),
		)
	}
}
