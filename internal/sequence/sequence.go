package sequence

import (
	"errors"
	"fmt"
	"math/rand"
)

// Discipline selects the order in which pages are touched.
type Discipline int

const (
	// Random touches pages in a uniformly random order.
	Random Discipline = iota
	// Serial touches pages in ascending order.
	Serial
)

func (d Discipline) String() string {
	switch d {
	case Random:
		return "random"
	case Serial:
		return "serial"
	default:
		return fmt.Sprintf("discipline(%d)", int(d))
	}
}

var (
	// ErrInvalidGeometry is returned for a non-positive page size or negative page count.
	ErrInvalidGeometry = errors.New("sequence: invalid geometry")
	// ErrNotBijection is returned by Validate when a sequence misses or repeats a page.
	ErrNotBijection = errors.New("sequence: not a bijection onto page offsets")
)

// Identity returns [0, pageSize, 2*pageSize, ...] with pageCount entries.
func Identity(pageCount, pageSize int) []int {
	seq := make([]int, pageCount)
	for i := range seq {
		seq[i] = i * pageSize
	}
	return seq
}

// Permutation returns the offsets of Identity in a uniformly random order
// drawn from rng.
func Permutation(pageCount, pageSize int, rng *rand.Rand) []int {
	seq := Identity(pageCount, pageSize)
	rng.Shuffle(len(seq), func(i, j int) {
		seq[i], seq[j] = seq[j], seq[i]
	})
	return seq
}

// Build returns the sequence for the given discipline. rng is only used
// by Random and may be nil for Serial.
func Build(d Discipline, pageCount, pageSize int, rng *rand.Rand) ([]int, error) {
	if pageSize <= 0 || pageCount < 0 {
		return nil, ErrInvalidGeometry
	}
	switch d {
	case Serial:
		return Identity(pageCount, pageSize), nil
	case Random:
		if rng == nil {
			return nil, errors.New("sequence: random discipline requires a source")
		}
		return Permutation(pageCount, pageSize, rng), nil
	default:
		return nil, fmt.Errorf("sequence: unknown discipline %d", int(d))
	}
}

// Validate checks that seq covers every page offset exactly once.
func Validate(seq []int, pageCount, pageSize int) error {
	if len(seq) != pageCount {
		return fmt.Errorf("%w: %d entries for %d pages", ErrNotBijection, len(seq), pageCount)
	}
	seen := make([]bool, pageCount)
	for i, off := range seq {
		if off < 0 || off%pageSize != 0 || off/pageSize >= pageCount {
			return fmt.Errorf("%w: entry %d has offset %d", ErrNotBijection, i, off)
		}
		page := off / pageSize
		if seen[page] {
			return fmt.Errorf("%w: page %d repeated at entry %d", ErrNotBijection, page, i)
		}
		seen[page] = true
	}
	return nil
}

// NewSource returns a random source seeded from a process id so parallel
// processes do not fault their pages in lockstep.
func NewSource(pid int) *rand.Rand {
	return rand.New(rand.NewSource(int64(pid)))
}
