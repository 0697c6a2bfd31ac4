package pagefault

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting run metrics.
// Implement this interface to integrate with monitoring systems.
//
// RecordRemap is called inside the timed region of both bodies, so
// implementations must be cheap and must cost the same for every body.
type MetricsCollector interface {
	// RecordRemap is called after every remap cycle.
	RecordRemap(body Body)

	// RecordBatch is called after a timed batch, outside the clock.
	RecordBatch(body Body, iterations uint64)

	// RecordDrop is called after each page cache drop.
	RecordDrop(duration time.Duration, err error)

	// RecordResidency is called after each residency check. residentAhead
	// counts pages at the head of the access order that are still cached.
	RecordResidency(nonResident, residentAhead, total int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRemap(Body)                {}
func (NoopMetricsCollector) RecordBatch(Body, uint64)        {}
func (NoopMetricsCollector) RecordDrop(time.Duration, error) {}
func (NoopMetricsCollector) RecordResidency(int, int, int)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CombinedRemaps     atomic.Int64
	BaselineRemaps     atomic.Int64
	CombinedIterations atomic.Int64
	BaselineIterations atomic.Int64
	DropCount          atomic.Int64
	DropErrors         atomic.Int64
	DropTotalNanos     atomic.Int64
	ResidencyChecks    atomic.Int64
	LastNonResident    atomic.Int64
	LastResidentAhead  atomic.Int64
}

// RecordRemap implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemap(body Body) {
	if body == BodyCombined {
		b.CombinedRemaps.Add(1)
	} else {
		b.BaselineRemaps.Add(1)
	}
}

// RecordBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatch(body Body, iterations uint64) {
	if body == BodyCombined {
		b.CombinedIterations.Add(int64(iterations))
	} else {
		b.BaselineIterations.Add(int64(iterations))
	}
}

// RecordDrop implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDrop(duration time.Duration, err error) {
	b.DropCount.Add(1)
	b.DropTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DropErrors.Add(1)
	}
}

// RecordResidency implements MetricsCollector.
func (b *BasicMetricsCollector) RecordResidency(nonResident, residentAhead, total int) {
	b.ResidencyChecks.Add(1)
	b.LastNonResident.Store(int64(nonResident))
	b.LastResidentAhead.Store(int64(residentAhead))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CombinedRemaps:     b.CombinedRemaps.Load(),
		BaselineRemaps:     b.BaselineRemaps.Load(),
		CombinedIterations: b.CombinedIterations.Load(),
		BaselineIterations: b.BaselineIterations.Load(),
		DropCount:          b.DropCount.Load(),
		DropErrors:         b.DropErrors.Load(),
		DropAvgNanos:       b.getAvgDropNanos(),
		ResidencyChecks:    b.ResidencyChecks.Load(),
		LastNonResident:    b.LastNonResident.Load(),
		LastResidentAhead:  b.LastResidentAhead.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgDropNanos() int64 {
	count := b.DropCount.Load()
	if count == 0 {
		return 0
	}
	return b.DropTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CombinedRemaps     int64
	BaselineRemaps     int64
	CombinedIterations int64
	BaselineIterations int64
	DropCount          int64
	DropErrors         int64
	DropAvgNanos       int64
	ResidencyChecks    int64
	LastNonResident    int64
	LastResidentAhead  int64
}
