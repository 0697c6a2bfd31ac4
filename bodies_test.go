//go:build linux || darwin

package pagefault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pagefault/testutil"
	"github.com/hupe1980/pagefault/timing"
)

func TestBodies_RemapSymmetry(t *testing.T) {
	path := testutil.CreateSizedFile(t, 2<<20)
	metrics := &BasicMetricsCollector{}
	s := New(path, WithMetricsCollector(metrics), WithDropper(nil))
	ctx := context.Background()

	require.NoError(t, s.Setup(ctx, 0))
	defer s.Teardown(ctx, 0)

	require.NoError(t, s.Combined(ctx, 3))
	require.NoError(t, s.Baseline(ctx, 3))

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats.CombinedRemaps)
	assert.Equal(t, int64(3), stats.BaselineRemaps)
	assert.Equal(t, uint64(6), s.Remaps())
}

func TestBodies_CombinedTouchesEveryPage(t *testing.T) {
	path := testutil.CreateSizedFile(t, 2<<20)
	ctx := context.Background()

	for _, d := range []Discipline{Serial, Random} {
		t.Run(d.String(), func(t *testing.T) {
			s := New(path, WithDiscipline(d), WithDropper(nil))
			require.NoError(t, s.Setup(ctx, 0))
			defer s.Teardown(ctx, 0)

			want := 0
			for i := range s.Geometry().PageCount {
				want += int(testutil.PageMarker(i))
			}

			require.NoError(t, s.Combined(ctx, 2))
			assert.Equal(t, 2*want, s.checksum)

			require.NoError(t, s.Baseline(ctx, 2))
			assert.Equal(t, 2*want, s.checksum)
		})
	}
}

func TestBodies_AccessHint(t *testing.T) {
	path := testutil.CreateSizedFile(t, 2<<20)
	s := New(path, WithAccessHint(true), WithDiscipline(Serial), WithDropper(nil))
	ctx := context.Background()

	require.NoError(t, s.Setup(ctx, 0))
	defer s.Teardown(ctx, 0)

	assert.NoError(t, s.Combined(ctx, 2))
	assert.NoError(t, s.Baseline(ctx, 2))
}

func TestBodies_NotSetUp(t *testing.T) {
	s := New("unused", WithDropper(nil))
	ctx := context.Background()

	assert.ErrorIs(t, s.Combined(ctx, 1), ErrNotSetUp)
	assert.ErrorIs(t, s.Baseline(ctx, 1), ErrNotSetUp)
}

func TestBodies_ThroughHarness(t *testing.T) {
	path := testutil.CreateSizedFile(t, 2<<20)
	metrics := &BasicMetricsCollector{}
	d := &fakeDropper{}
	s := New(path, WithMetricsCollector(metrics), WithDropCache(true), WithDropper(d))
	h := timing.New(timing.Config{Warmup: 1, Iterations: 4, Repetitions: 3})

	res, err := h.Run(context.Background(), "combined", s.Benchmark(BodyCombined))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), res.Iterations)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1+3*4), stats.CombinedIterations)
	assert.Equal(t, stats.CombinedIterations, stats.CombinedRemaps)
	assert.Zero(t, stats.BaselineRemaps)

	// One drop at setup and one before every batch, warmup included.
	assert.Equal(t, 1+1+3, d.drops)
	assert.Nil(t, s.Pages())
}

func TestParseBody(t *testing.T) {
	for _, b := range []Body{BodyCombined, BodyBaseline} {
		got, err := ParseBody(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}

	_, err := ParseBody("touch")
	assert.ErrorIs(t, err, ErrUnknownBody)
	assert.Equal(t, "body(7)", Body(7).String())
}
