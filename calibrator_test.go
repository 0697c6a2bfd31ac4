//go:build linux || darwin

package pagefault

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagefault/testutil"
	"github.com/hupe1980/pagefault/timing"
)

type recordingSink struct {
	calls []sinkCall
}

type sinkCall struct {
	name  string
	units uint64
	total time.Duration
}

func (s *recordingSink) Micro(name string, units uint64, total time.Duration) error {
	s.calls = append(s.calls, sinkCall{name: name, units: units, total: total})
	return nil
}

func TestCalibrate(t *testing.T) {
	tests := []struct {
		name      string
		combined  timing.Result
		baseline  timing.Result
		pageCount int
		wantDelta time.Duration
		wantNanos float64
	}{
		{
			name:      "same iterations",
			combined:  timing.Result{Elapsed: 10 * time.Millisecond, Iterations: 10},
			baseline:  timing.Result{Elapsed: 4 * time.Millisecond, Iterations: 10},
			pageCount: 512,
			wantDelta: 6 * time.Millisecond,
			wantNanos: 6e6 / 5120,
		},
		{
			name:      "baseline rescaled",
			combined:  timing.Result{Elapsed: 10 * time.Millisecond, Iterations: 10},
			baseline:  timing.Result{Elapsed: 2 * time.Millisecond, Iterations: 5},
			pageCount: 512,
			wantDelta: 6 * time.Millisecond,
			wantNanos: 6e6 / 5120,
		},
		{
			name:      "equal times",
			combined:  timing.Result{Elapsed: time.Millisecond, Iterations: 1},
			baseline:  timing.Result{Elapsed: time.Millisecond, Iterations: 1},
			pageCount: 256,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Calibrate(tt.combined, tt.baseline, tt.pageCount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDelta, r.Delta())
			assert.Equal(t, tt.combined.Iterations*uint64(tt.pageCount), r.Faults())
			assert.InDelta(t, tt.wantNanos, r.PerFaultNanos(), 1e-9)
		})
	}
}

func TestCalibrate_NegativeDelta(t *testing.T) {
	r, err := Calibrate(
		timing.Result{Elapsed: 3 * time.Millisecond, Iterations: 4},
		timing.Result{Elapsed: 5 * time.Millisecond, Iterations: 4},
		512,
	)
	require.ErrorIs(t, err, ErrNegativeDelta)
	assert.Equal(t, -2*time.Millisecond, r.Delta())
	assert.Negative(t, r.PerFaultNanos())
}

func TestCalibrate_NoIterations(t *testing.T) {
	_, err := Calibrate(timing.Result{}, timing.Result{}, 512)
	assert.Error(t, err)
}

func TestCalibrate_ScaleInvariant(t *testing.T) {
	rng := testutil.NewRNG(3)
	for range 100 {
		n := uint64(rng.Intn(1000) + 1)
		pages := rng.Intn(4096) + 256
		base := time.Duration(rng.Int63n(int64(time.Second)))
		fault := time.Duration(rng.Int63n(int64(time.Second)))

		one, err := Calibrate(
			timing.Result{Elapsed: base + fault, Iterations: n},
			timing.Result{Elapsed: base, Iterations: n},
			pages,
		)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, one.PerFaultNanos(), 0.0)

		two, err := Calibrate(
			timing.Result{Elapsed: 2 * (base + fault), Iterations: 2 * n},
			timing.Result{Elapsed: 2 * base, Iterations: 2 * n},
			pages,
		)
		require.NoError(t, err)
		assert.InDelta(t, one.PerFaultNanos(), two.PerFaultNanos(), 1e-6)
	}
}

func TestReport_MetricName(t *testing.T) {
	r := Report{File: "/data/source.bin"}
	assert.Equal(t, "Pagefaults on /data/source.bin", r.MetricName())
}

func TestCalibrator_Run(t *testing.T) {
	path := testutil.CreateSizedFile(t, 2<<20)
	metrics := &BasicMetricsCollector{}
	s := New(path, WithMetricsCollector(metrics), WithDiscipline(Serial), WithDropper(nil))

	// A mock clock never advances, so calibration primes once and runs up to MaxIterations
	// and both bodies report zero elapsed time.
	h := timing.New(timing.Config{
		Repetitions:   2,
		MaxIterations: 4,
		Clock:         clock.NewMock(),
	})
	sink := &recordingSink{}

	report, err := NewCalibrator(s, h, sink).Run(context.Background())
	require.NoError(t, err)

	pages := s.Geometry().PageCount
	assert.Equal(t, uint64(4), report.Iterations)
	assert.Equal(t, pages, report.PageCount)
	assert.Equal(t, path, report.File)
	assert.Equal(t, Serial, report.Discipline)
	assert.Zero(t, report.Delta())

	stats := metrics.GetStats()
	assert.Equal(t, int64(1+1+2+4+2*4), stats.CombinedIterations)
	assert.Equal(t, int64(2*4), stats.BaselineIterations)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "Pagefaults on "+path, sink.calls[0].name)
	assert.Equal(t, uint64(4*pages), sink.calls[0].units)
}

func TestCalibrator_RunRejectsSmallFile(t *testing.T) {
	path := testutil.CreateSizedFile(t, MinWorkingSet/2)
	s := New(path, WithDropper(nil))
	sink := &recordingSink{}

	_, err := NewCalibrator(s, timing.New(timing.Config{Iterations: 1}), sink).Run(context.Background())
	require.ErrorIs(t, err, ErrFileTooSmall)
	assert.Empty(t, sink.calls)
}

func TestCalibrator_TextSink(t *testing.T) {
	path := testutil.CreateSizedFile(t, 2<<20)
	s := New(path, WithDropper(nil))
	h := timing.New(timing.Config{Iterations: 1, Repetitions: 1, Clock: clock.NewMock()})
	var out bytes.Buffer

	_, err := NewCalibrator(s, h, timing.TextSink{W: &out}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Pagefaults on "+path+": 0.0000 microseconds\n", out.String())
}
