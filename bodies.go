package pagefault

import (
	"context"
	"fmt"

	"github.com/hupe1980/pagefault/timing"
)

// Body selects one of the two measured procedures.
type Body int

const (
	// BodyCombined touches every page and then remaps (map + fault cost).
	BodyCombined Body = iota
	// BodyBaseline only remaps (map cost).
	BodyBaseline
)

func (b Body) String() string {
	switch b {
	case BodyCombined:
		return "combined"
	case BodyBaseline:
		return "baseline"
	default:
		return fmt.Sprintf("body(%d)", int(b))
	}
}

// ParseBody returns the Body named by String.
func ParseBody(name string) (Body, error) {
	switch name {
	case "combined":
		return BodyCombined, nil
	case "baseline":
		return BodyBaseline, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBody, name)
	}
}

// Combined touches one byte of every page in access order and remaps,
// iterations times.
func (s *State) Combined(ctx context.Context, iterations uint64) error {
	return s.cycle(BodyCombined, iterations)
}

// Baseline remaps iterations times without touching any page.
func (s *State) Baseline(ctx context.Context, iterations uint64) error {
	return s.cycle(BodyBaseline, iterations)
}

// cycle is the loop shared by both bodies. Only the touch step differs, so
// the remap cost cancels out in the calibration subtraction.
func (s *State) cycle(body Body, iterations uint64) error {
	if s.mapping == nil {
		return ErrNotSetUp
	}

	touch := body == BodyCombined
	sum := 0
	for range iterations {
		if touch {
			data := s.mapping.Bytes()
			for _, off := range s.pages {
				sum += int(data[off])
			}
		}
		if err := s.remap(body); err != nil {
			return err
		}
	}
	s.checksum += sum
	return nil
}

// remap gives the region a fresh address range so every page faults again.
func (s *State) remap(body Body) error {
	if err := s.mapping.Remap(); err != nil {
		return setupError("mmap", s.path, err)
	}
	s.remaps++
	s.opts.metricsCollector.RecordRemap(body)

	if s.invalidate {
		if err := s.mapping.Invalidate(); err != nil {
			return setupError("msync", s.path, err)
		}
	}
	return s.advise()
}

// Benchmark adapts one body of s to the timing harness.
func (s *State) Benchmark(body Body) timing.Benchmark {
	return &bodyBenchmark{state: s, body: body}
}

type bodyBenchmark struct {
	state *State
	body  Body
}

func (b *bodyBenchmark) Setup(ctx context.Context, iterations uint64) error {
	return b.state.Setup(ctx, iterations)
}

func (b *bodyBenchmark) Measure(ctx context.Context, iterations uint64) error {
	return b.state.cycle(b.body, iterations)
}

func (b *bodyBenchmark) Teardown(ctx context.Context, iterations uint64) error {
	if iterations > 0 {
		b.state.opts.metricsCollector.RecordBatch(b.body, iterations)
	}
	return b.state.Teardown(ctx, iterations)
}
