package pagefault

import (
	"context"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/pagefault/internal/pagecache"
)

// Logger wraps slog.Logger with benchmark-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRunID tags every record with the run identifier shared by the parent
// process and its workers.
func (l *Logger) WithRunID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run_id", id),
	}
}

// WithFile adds the fault source path to the logger.
func (l *Logger) WithFile(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", path),
	}
}

// LogSetup logs the geometry of a freshly set up State.
func (l *Logger) LogSetup(ctx context.Context, g Geometry, discipline Discipline, dropCache bool) {
	l.DebugContext(ctx, "setup completed",
		"size", humanize.IBytes(uint64(g.Size)),
		"page_size", g.PageSize,
		"pages", g.PageCount,
		"discipline", discipline.String(),
		"drop_cache", dropCache,
	)
}

// LogDrop logs a page cache drop.
func (l *Logger) LogDrop(ctx context.Context, n uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cache drop failed",
			"drop", n,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "cache dropped",
			"drop", n,
		)
	}
}

// residentRangeLimit caps the resident runs listed per residency log.
const residentRangeLimit = 8

// LogResidency logs how many pages a cache drop evicted and where the
// survivors are. ahead counts survivors at the head of the access order.
func (l *Logger) LogResidency(ctx context.Context, n uint64, report pagecache.Report, ahead int) {
	ranges := report.ResidentRanges(residentRangeLimit)
	resident := make([]string, len(ranges))
	for i, r := range ranges {
		resident[i] = r.String()
	}
	l.InfoContext(ctx, "pages paged out",
		"drop", n,
		"non_resident", report.Dropped(),
		"pages", report.Pages,
		"resident_ahead", ahead,
		"resident_ranges", resident,
	)
}

// LogReport logs the outcome of a calibrated run.
func (l *Logger) LogReport(ctx context.Context, r Report, err error) {
	if err != nil {
		l.ErrorContext(ctx, "measurement rejected",
			"iterations", r.Iterations,
			"combined", r.Combined,
			"baseline", r.Baseline,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "measurement completed",
			"iterations", r.Iterations,
			"combined", r.Combined,
			"baseline", r.Baseline,
			"per_fault", r.PerFault(),
		)
	}
}
