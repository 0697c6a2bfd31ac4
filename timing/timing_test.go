package timing

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op string
	n  uint64
}

type fakeBench struct {
	clock *clock.Mock
	cost  time.Duration
	calls []call
	fail  string

	// cold, when set, replaces the cost of the first measured batch.
	cold time.Duration
}

func (b *fakeBench) record(op string, n uint64) error {
	b.calls = append(b.calls, call{op, n})
	if b.fail == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (b *fakeBench) Setup(_ context.Context, n uint64) error { return b.record("setup", n) }

func (b *fakeBench) Measure(_ context.Context, n uint64) error {
	if b.cold > 0 && len(b.measured()) == 0 {
		b.clock.Add(b.cold)
	} else {
		b.clock.Add(b.cost * time.Duration(n))
	}
	return b.record("measure", n)
}

func (b *fakeBench) Teardown(_ context.Context, n uint64) error { return b.record("teardown", n) }

func (b *fakeBench) measured() []uint64 {
	var ns []uint64
	for _, c := range b.calls {
		if c.op == "measure" {
			ns = append(ns, c.n)
		}
	}
	return ns
}

func TestHarness_Calibrates(t *testing.T) {
	mock := clock.NewMock()
	b := &fakeBench{clock: mock, cost: time.Millisecond}

	h := New(Config{Repetitions: 3, MinDuration: 5 * time.Millisecond, Clock: mock})
	res, err := h.Run(context.Background(), "fake", b)
	require.NoError(t, err)

	assert.Equal(t, uint64(8), res.Iterations)
	assert.Equal(t, 8*time.Millisecond, res.Elapsed)
	assert.Equal(t, time.Millisecond, res.PerIteration())
	assert.Equal(t, 1, res.Processes)
	assert.Equal(t, []uint64{1, 1, 2, 4, 8, 8, 8, 8}, b.measured())

	assert.Equal(t, call{"setup", 0}, b.calls[0])
	assert.Equal(t, call{"teardown", 0}, b.calls[len(b.calls)-1])
}

func TestHarness_CalibrationIgnoresColdFirstBatch(t *testing.T) {
	mock := clock.NewMock()
	// The first batch after Setup(0) alone crosses MinDuration.
	b := &fakeBench{clock: mock, cost: time.Millisecond, cold: 50 * time.Millisecond}

	h := New(Config{Repetitions: 1, MinDuration: 5 * time.Millisecond, Clock: mock})
	res, err := h.Run(context.Background(), "fake", b)
	require.NoError(t, err)

	assert.Equal(t, uint64(8), res.Iterations)
	assert.Equal(t, 8*time.Millisecond, res.Elapsed)
	assert.Equal(t, []uint64{1, 1, 2, 4, 8, 8}, b.measured())
}

func TestHarness_FixedIterationsAndWarmup(t *testing.T) {
	mock := clock.NewMock()
	b := &fakeBench{clock: mock, cost: 2 * time.Millisecond}

	h := New(Config{Iterations: 10, Warmup: 3, Repetitions: 2, Clock: mock})
	res, err := h.Run(context.Background(), "fake", b)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), res.Iterations)
	assert.Equal(t, 20*time.Millisecond, res.Elapsed)
	assert.Equal(t, []uint64{3, 10, 10}, b.measured())

	// Every batch is bracketed outside the clock.
	expected := []call{
		{"setup", 0},
		{"setup", 3}, {"measure", 3}, {"teardown", 3},
		{"setup", 10}, {"measure", 10}, {"teardown", 10},
		{"setup", 10}, {"measure", 10}, {"teardown", 10},
		{"teardown", 0},
	}
	assert.Equal(t, expected, b.calls)
}

func TestHarness_WithIterations(t *testing.T) {
	mock := clock.NewMock()
	h := New(Config{Repetitions: 1, Clock: mock})

	fixed := h.WithIterations(4)
	assert.Equal(t, uint64(4), fixed.Config().Iterations)
	assert.Zero(t, h.Config().Iterations)
}

func TestHarness_MaxIterations(t *testing.T) {
	mock := clock.NewMock()
	b := &fakeBench{clock: mock}

	h := New(Config{Repetitions: 1, MaxIterations: 16, Clock: mock})
	res, err := h.Run(context.Background(), "fake", b)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), res.Iterations)
}

func TestHarness_SetupFailure(t *testing.T) {
	mock := clock.NewMock()
	b := &fakeBench{clock: mock, cost: time.Millisecond, fail: "setup"}

	_, err := New(Config{Iterations: 1, Clock: mock}).Run(context.Background(), "fake", b)
	require.Error(t, err)
	assert.Equal(t, []call{{"setup", 0}}, b.calls)
}

func TestHarness_MeasureFailureStillTearsDown(t *testing.T) {
	mock := clock.NewMock()
	b := &fakeBench{clock: mock, cost: time.Millisecond, fail: "measure"}

	_, err := New(Config{Iterations: 1, Clock: mock}).Run(context.Background(), "fake", b)
	require.Error(t, err)
	assert.Equal(t, call{"teardown", 0}, b.calls[len(b.calls)-1])
}

func TestHarness_Canceled(t *testing.T) {
	mock := clock.NewMock()
	b := &fakeBench{clock: mock, cost: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{Iterations: 1, Clock: mock}).Run(ctx, "fake", b)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMedian(t *testing.T) {
	assert.Zero(t, Median(nil))
	assert.Equal(t, 3*time.Second, Median([]time.Duration{5 * time.Second, time.Second, 3 * time.Second}))
	assert.Equal(t, 2*time.Second, Median([]time.Duration{4 * time.Second, time.Second, 3 * time.Second, time.Second}))

	samples := []time.Duration{3, 1, 2}
	Median(samples)
	assert.Equal(t, []time.Duration{3, 1, 2}, samples)
}

type fakeWorker struct {
	mu       *sync.Mutex
	events   *[]string
	result   Result
	readyErr error
	killed   bool
}

func (w *fakeWorker) log(ev string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	*w.events = append(*w.events, ev)
}

func (w *fakeWorker) Ready() error          { w.log("ready"); return w.readyErr }
func (w *fakeWorker) Start() error          { w.log("start"); return nil }
func (w *fakeWorker) Wait() (Result, error) { return w.result, nil }
func (w *fakeWorker) Kill()                 { w.killed = true }

type fakeLauncher struct {
	mu      sync.Mutex
	eventMu sync.Mutex
	jobs    []Job
	events  []string
	workers []*fakeWorker
	elapsed []time.Duration
	failAt  int
}

func (l *fakeLauncher) Launch(_ context.Context, job Job) (Worker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := len(l.jobs)
	l.jobs = append(l.jobs, job)
	w := &fakeWorker{
		mu:     &l.eventMu,
		events: &l.events,
		result: Result{Elapsed: l.elapsed[i], Iterations: job.Iterations, Processes: 1},
	}
	if l.failAt == i+1 {
		w.readyErr = errors.New("setup failed")
	}
	l.workers = append(l.workers, w)
	return w, nil
}

func TestHarness_Parallel(t *testing.T) {
	mock := clock.NewMock()
	b := &fakeBench{clock: mock, cost: time.Millisecond}
	l := &fakeLauncher{elapsed: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}}

	h := New(Config{Parallel: 3, Warmup: 2, Repetitions: 5, MinDuration: 4 * time.Millisecond, Clock: mock}, WithLauncher(l))
	res, err := h.Run(context.Background(), "combined", b)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, res.Elapsed)
	assert.Equal(t, uint64(4), res.Iterations)
	assert.Equal(t, 3, res.Processes)

	require.Len(t, l.jobs, 3)
	for _, job := range l.jobs {
		assert.Equal(t, Job{Benchmark: "combined", Iterations: 4, Warmup: 2, Repetitions: 5}, job)
	}

	// All workers are ready before any starts.
	assert.Equal(t, []string{"ready", "ready", "ready", "start", "start", "start"}, l.events)
}

func TestHarness_ParallelReadyFailureKillsWorkers(t *testing.T) {
	l := &fakeLauncher{elapsed: make([]time.Duration, 2), failAt: 2}

	h := New(Config{Parallel: 2, Iterations: 1}, WithLauncher(l))
	_, err := h.Run(context.Background(), "combined", &fakeBench{clock: clock.NewMock()})
	require.Error(t, err)

	for _, w := range l.workers {
		assert.True(t, w.killed)
	}
}

func TestHarness_ParallelWithoutLauncher(t *testing.T) {
	_, err := New(Config{Parallel: 2}).Run(context.Background(), "x", &fakeBench{clock: clock.NewMock()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestServeWorker(t *testing.T) {
	mock := clock.NewMock()
	b := &fakeBench{clock: mock, cost: time.Millisecond}
	var out bytes.Buffer

	job := Job{Benchmark: "combined", Iterations: 6, Warmup: 1, Repetitions: 3}
	err := ServeWorker(context.Background(), b, job, Config{Clock: mock}, strings.NewReader("start\n"), &out)
	require.NoError(t, err)

	r := bufio.NewReader(&out)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ready\n", line)

	var res Result
	require.NoError(t, json.NewDecoder(r).Decode(&res))
	assert.Equal(t, Result{Elapsed: 6 * time.Millisecond, Iterations: 6, Processes: 1}, res)
	assert.Equal(t, []uint64{1, 6, 6, 6}, b.measured())
}

func TestServeWorker_ProtocolViolation(t *testing.T) {
	b := &fakeBench{clock: clock.NewMock()}
	var out bytes.Buffer

	err := ServeWorker(context.Background(), b, Job{Iterations: 1, Repetitions: 1}, Config{}, strings.NewReader("go\n"), &out)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, call{"teardown", 0}, b.calls[len(b.calls)-1])

	err = ServeWorker(context.Background(), b, Job{}, Config{}, strings.NewReader("start\n"), &out)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTextSink(t *testing.T) {
	var buf bytes.Buffer
	s := TextSink{W: &buf}

	require.NoError(t, s.Micro("Pagefaults on /tmp/f", 1000, time.Millisecond))
	assert.Equal(t, "Pagefaults on /tmp/f: 1.0000 microseconds\n", buf.String())

	assert.Error(t, s.Micro("empty", 0, time.Second))
}
