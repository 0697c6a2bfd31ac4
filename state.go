package pagefault

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/hupe1980/pagefault/internal/conv"
	"github.com/hupe1980/pagefault/internal/fs"
	"github.com/hupe1980/pagefault/internal/mmap"
	"github.com/hupe1980/pagefault/internal/pagecache"
	"github.com/hupe1980/pagefault/internal/sequence"
)

// MinWorkingSet is the smallest page-aligned fault source accepted.
// Smaller mappings do not reliably show cold-fault behavior.
const MinWorkingSet = 1 << 20

// residencyLookahead is how many leading accesses a residency check
// inspects. Those pages soft-fault at the start of the next batch.
const residencyLookahead = 64

// offsetBytes is the in-memory size of one access sequence entry.
const offsetBytes = strconv.IntSize / 8

// Geometry is the page-aligned shape of a mapped fault source.
type Geometry struct {
	Size      int
	PageSize  int
	PageCount int
}

// NewGeometry truncates fileSize down to a multiple of pageSize. It fails
// with ErrFileTooLarge when the aligned size does not fit the address space.
func NewGeometry(fileSize int64, pageSize int) (Geometry, error) {
	aligned := fileSize - fileSize%int64(pageSize)
	size, err := conv.Int64ToInt(aligned)
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %w", ErrFileTooLarge, err)
	}
	return Geometry{
		Size:      size,
		PageSize:  pageSize,
		PageCount: size / pageSize,
	}, nil
}

func geometryOf(path string, fileSize int64, pageSize int) (Geometry, error) {
	g, err := NewGeometry(fileSize, pageSize)
	if err != nil {
		return Geometry{}, fmt.Errorf("%s: %w", path, err)
	}
	if g.Size < MinWorkingSet {
		return Geometry{}, fmt.Errorf("%w: %s has %d usable bytes, need %d", ErrFileTooSmall, path, g.Size, MinWorkingSet)
	}
	return g, nil
}

// State is everything one measuring process knows about its fault source.
// It is not safe for concurrent use; parallel measurements run in separate
// processes, each with its own State.
type State struct {
	opts   options
	path   string
	logger *Logger
	rng    *rand.Rand

	file       fs.File
	mapping    *mmap.Mapping
	geometry   Geometry
	pages      []int
	reserved   int64
	dropper    CacheDropper
	invalidate bool
	advice     mmap.AccessPattern

	remaps   uint64
	drops    uint64
	checksum int
}

// New creates a State for the fault source at path. Nothing is opened
// until Setup is called with zero iterations.
func New(path string, opts ...Option) *State {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &State{
		opts:   o,
		path:   path,
		logger: o.logger.WithFile(path),
		rng:    sequence.NewSource(o.pid),
		advice: mmap.AccessDefault,
	}
	if o.accessHint {
		s.advice = mmap.AccessRandom
		if o.discipline == Serial {
			s.advice = mmap.AccessSequential
		}
	}
	return s
}

// Path returns the fault source as given to New.
func (s *State) Path() string {
	return s.path
}

// Geometry returns the geometry computed by the last Setup.
func (s *State) Geometry() Geometry {
	return s.geometry
}

// Pages returns the access sequence. The slice must not be modified.
func (s *State) Pages() []int {
	return s.pages
}

// Remaps returns the number of remap cycles performed so far.
func (s *State) Remaps() uint64 {
	return s.remaps
}

// Drops returns the number of page cache drops performed so far.
func (s *State) Drops() uint64 {
	return s.drops
}

// CanDropCache reports whether the cache drop capability was acquired.
func (s *State) CanDropCache() bool {
	return s.dropper != nil
}

// Invalidates reports whether remaps are followed by msync(MS_INVALIDATE).
func (s *State) Invalidates() bool {
	return s.invalidate
}

// Probe stats the fault source and validates its geometry without opening
// or mapping it.
func (s *State) Probe() (Geometry, error) {
	info, err := s.opts.fsys.Stat(s.path)
	if err != nil {
		return Geometry{}, setupError("stat", s.path, err)
	}
	if !info.Mode().IsRegular() {
		return Geometry{}, fmt.Errorf("%w: %s", ErrNotRegular, s.path)
	}
	return geometryOf(s.path, info.Size(), s.opts.pageSize)
}

// Setup prepares the State. With zero iterations it opens, maps and, when
// the capability exists, drops the page cache once. With a positive
// iteration count a batch is about to be timed: only the per-batch cache
// drop runs, so its cost stays outside the clock.
func (s *State) Setup(ctx context.Context, iterations uint64) error {
	if iterations > 0 {
		if s.opts.dropCache {
			return s.dropCache(ctx)
		}
		return nil
	}
	if s.mapping != nil {
		return nil
	}

	if err := s.open(ctx); err != nil {
		_ = s.release()
		return err
	}
	s.logger.LogSetup(ctx, s.geometry, s.opts.discipline, s.opts.dropCache && s.dropper != nil)
	return nil
}

// Teardown releases the mapping, the descriptor, the access sequence and
// the cache drop handle. Calls with a positive iteration count are no-ops.
func (s *State) Teardown(ctx context.Context, iterations uint64) error {
	if iterations > 0 {
		return nil
	}
	return s.release()
}

func (s *State) open(ctx context.Context) error {
	path := s.path
	if s.opts.clone {
		clone := s.path + strconv.Itoa(s.opts.pid)
		if err := fs.Copy(ctx, s.opts.fsys, s.path, clone, 0o600, s.opts.resources); err != nil {
			return setupError("clone", s.path, err)
		}
		path = clone
	}

	f, err := s.opts.fsys.OpenFile(path, os.O_RDONLY, 0)
	if s.opts.clone {
		// The descriptor keeps the clone alive; its name goes away now.
		if rmErr := s.opts.fsys.Remove(path); rmErr != nil && err == nil {
			f.Close()
			return setupError("unlink", path, rmErr)
		}
	}
	if err != nil {
		return setupError("open", path, err)
	}
	s.file = f

	info, err := f.Stat()
	if err != nil {
		return setupError("stat", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, path)
	}

	g, err := geometryOf(path, info.Size(), s.opts.pageSize)
	if err != nil {
		return err
	}
	s.geometry = g

	reserve := int64(g.PageCount) * offsetBytes
	if s.opts.verbose {
		reserve += int64(g.PageCount) // residency vector
	}
	if err := s.opts.resources.AcquireMemory(reserve); err != nil {
		return setupError("alloc", path, err)
	}
	s.reserved = reserve

	pages, err := sequence.Build(s.opts.discipline, g.PageCount, g.PageSize, s.rng)
	if err != nil {
		return setupError("sequence", path, err)
	}
	s.pages = pages

	m, err := mmap.Map(f, g.Size)
	if err != nil {
		return setupError("mmap", path, err)
	}
	s.mapping = m

	switch err := m.Invalidate(); {
	case err == nil:
		s.invalidate = true
	case errors.Is(err, mmap.ErrUnsupported):
		s.invalidate = false
		s.logger.DebugContext(ctx, "msync invalidation unavailable")
	default:
		return setupError("msync", path, err)
	}
	if err := s.advise(); err != nil {
		return setupError("madvise", path, err)
	}

	d, err := s.opts.openDropper()
	switch {
	case err == nil:
		s.dropper = d
	case errors.Is(err, pagecache.ErrUnsupported):
		s.logger.WarnContext(ctx, "page cache drop unavailable, faults may not be cold", "error", err)
	default:
		return setupError("open", pagecache.DropCachesPath, err)
	}
	return s.dropCache(ctx)
}

func (s *State) release() error {
	var errs []error
	if s.mapping != nil {
		errs = append(errs, s.mapping.Close())
		s.mapping = nil
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	if s.dropper != nil {
		errs = append(errs, s.dropper.Close())
		s.dropper = nil
	}
	s.opts.resources.ReleaseMemory(s.reserved)
	s.reserved = 0
	s.pages = nil
	return errors.Join(errs...)
}

func (s *State) advise() error {
	if s.advice == mmap.AccessDefault {
		return nil
	}
	return s.mapping.Advise(s.advice)
}

// dropCache evicts the page cache when the capability is present. A failing
// drop after the capability was acquired is a measurement integrity error.
func (s *State) dropCache(ctx context.Context) error {
	if s.dropper == nil {
		return nil
	}

	start := time.Now()
	err := s.dropper.Drop()
	s.opts.metricsCollector.RecordDrop(time.Since(start), err)
	s.drops++
	s.logger.LogDrop(ctx, s.drops, err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheDrop, err)
	}

	if s.opts.verbose {
		s.checkPageout(ctx)
	}
	return nil
}

// checkPageout logs how many pages of the mapping are not resident. It is
// diagnostic only and never fails the run.
func (s *State) checkPageout(ctx context.Context) {
	if s.mapping == nil {
		return
	}
	pages := (s.mapping.Size() + mmap.PageSize() - 1) / mmap.PageSize()
	report, err := pagecache.Residency(s.mapping, pages)
	if err != nil {
		s.logger.WarnContext(ctx, "residency check failed", "error", err)
		return
	}
	s.recordResidency(ctx, report)
}

func (s *State) recordResidency(ctx context.Context, report pagecache.Report) {
	ahead := report.ResidentOf(s.pages[:min(len(s.pages), residencyLookahead)], mmap.PageSize())
	s.opts.metricsCollector.RecordResidency(report.Dropped(), ahead, report.Pages)
	s.logger.LogResidency(ctx, s.drops, report, ahead)
}
