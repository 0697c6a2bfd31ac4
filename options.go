package pagefault

import (
	"os"

	"github.com/hupe1980/pagefault/internal/fs"
	"github.com/hupe1980/pagefault/internal/mmap"
	"github.com/hupe1980/pagefault/internal/pagecache"
	"github.com/hupe1980/pagefault/internal/resource"
	"github.com/hupe1980/pagefault/internal/sequence"
)

// Discipline is the order in which pages are touched.
type Discipline = sequence.Discipline

const (
	// Random touches pages in a uniformly random order (the default).
	Random = sequence.Random
	// Serial touches pages in ascending order.
	Serial = sequence.Serial
)

// CacheDropper evicts the page cache. The default implementation writes to
// /proc/sys/vm/drop_caches.
type CacheDropper interface {
	Drop() error
	Close() error
}

type options struct {
	clone            bool
	dropCache        bool
	discipline       Discipline
	verbose          bool
	accessHint       bool
	logger           *Logger
	metricsCollector MetricsCollector
	fsys             fs.FileSystem
	resources        *resource.Controller
	pageSize         int
	pid              int
	openDropper      func() (CacheDropper, error)
}

func defaultOptions() options {
	return options{
		discipline:       Random,
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		fsys:             fs.Default,
		pageSize:         mmap.PageSize(),
		pid:              os.Getpid(),
		openDropper:      openSystemDropper,
	}
}

func openSystemDropper() (CacheDropper, error) {
	d, err := pagecache.Open()
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Option configures a State.
type Option func(*options)

// WithClone copies the fault source to a process-private path before
// mapping it and unlinks the copy once it is open, so every process has
// its own page cache identity.
func WithClone(clone bool) Option {
	return func(o *options) {
		o.clone = clone
	}
}

// WithDropCache drops the page cache before every timed batch.
func WithDropCache(drop bool) Option {
	return func(o *options) {
		o.dropCache = drop
	}
}

// WithDiscipline selects the page access order.
func WithDiscipline(d Discipline) Option {
	return func(o *options) {
		o.discipline = d
	}
}

// WithVerbose enables residency reports after every cache drop.
func WithVerbose(verbose bool) Option {
	return func(o *options) {
		o.verbose = verbose
	}
}

// WithAccessHint passes the access discipline to the kernel with madvise
// after every (re)map. Readahead changes which faults are hard, so this is
// off by default.
func WithAccessHint(hint bool) Option {
	return func(o *options) {
		o.accessHint = hint
	}
}

// WithLogger configures the logger. If nil, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &pagefault.BasicMetricsCollector{}
//	s := pagefault.New(path, pagefault.WithMetricsCollector(metrics))
//	// ... run ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithFileSystem replaces the filesystem used to clone and open the fault
// source.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys == nil {
			fsys = fs.Default
		}
		o.fsys = fsys
	}
}

// WithResourceController bounds the memory a State reserves and the rate
// at which it clones.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithPageSize overrides the platform page size. It must be a multiple of
// the platform page size for the mapping to stay aligned.
func WithPageSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

// WithPID overrides the process id used to seed the random discipline and
// to name clones.
func WithPID(pid int) Option {
	return func(o *options) {
		o.pid = pid
	}
}

// WithDropper replaces the cache drop capability. A nil dropper marks the
// capability as unavailable.
func WithDropper(d CacheDropper) Option {
	return func(o *options) {
		o.openDropper = func() (CacheDropper, error) {
			if d == nil {
				return nil, pagecache.ErrUnsupported
			}
			return d, nil
		}
	}
}
