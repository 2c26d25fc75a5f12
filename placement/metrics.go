package placement

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    chunkCounter    prometheus.Counter
//	    placeHistogram  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordChunk(pairs int, duration time.Duration, err error) {
//	    p.chunkCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
//
// The engine stores the configured collector but neither Build nor Place
// calls any of its methods.
type MetricsCollector interface {
	// RecordChunk records one query-stream chunk cycle. pairs is the
	// number of (branch, sequence) pairs scored in the cycle.
	RecordChunk(pairs int, duration time.Duration, err error)

	// RecordFaultIn records one resolved resident-set miss.
	RecordFaultIn(duration time.Duration, err error)

	// RecordCacheHit records one resident-set lookup, hit or miss.
	RecordCacheHit(hit bool)

	// RecordBranchOptimise records one thorough-placement branch-length
	// optimisation.
	RecordBranchOptimise(rounds int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector. Use
// this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordChunk(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordFaultIn(time.Duration, error)             {}
func (NoopMetricsCollector) RecordCacheHit(bool)                            {}
func (NoopMetricsCollector) RecordBranchOptimise(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ChunkCount               atomic.Int64
	ChunkErrors              atomic.Int64
	ChunkPairs               atomic.Int64
	ChunkTotalNanos          atomic.Int64
	FaultInCount             atomic.Int64
	FaultInErrors            atomic.Int64
	FaultInTotalNanos        atomic.Int64
	CacheHits                atomic.Int64
	CacheMisses              atomic.Int64
	BranchOptimiseCount      atomic.Int64
	BranchOptimiseErrors     atomic.Int64
	BranchOptimiseRounds     atomic.Int64
	BranchOptimiseTotalNanos atomic.Int64
}

// RecordChunk implements MetricsCollector.
func (b *BasicMetricsCollector) RecordChunk(pairs int, duration time.Duration, err error) {
	b.ChunkCount.Add(1)
	b.ChunkPairs.Add(int64(pairs))
	b.ChunkTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ChunkErrors.Add(1)
	}
}

// RecordFaultIn implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFaultIn(duration time.Duration, err error) {
	b.FaultInCount.Add(1)
	b.FaultInTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FaultInErrors.Add(1)
	}
}

// RecordCacheHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheHit(hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

// RecordBranchOptimise implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBranchOptimise(rounds int, duration time.Duration, err error) {
	b.BranchOptimiseCount.Add(1)
	b.BranchOptimiseRounds.Add(int64(rounds))
	b.BranchOptimiseTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BranchOptimiseErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ChunkCount:           b.ChunkCount.Load(),
		ChunkErrors:          b.ChunkErrors.Load(),
		ChunkPairs:           b.ChunkPairs.Load(),
		ChunkAvgNanos:        b.getAvgNanos(b.ChunkTotalNanos.Load(), b.ChunkCount.Load()),
		FaultInCount:         b.FaultInCount.Load(),
		FaultInErrors:        b.FaultInErrors.Load(),
		FaultInAvgNanos:      b.getAvgNanos(b.FaultInTotalNanos.Load(), b.FaultInCount.Load()),
		CacheHits:            b.CacheHits.Load(),
		CacheMisses:          b.CacheMisses.Load(),
		CacheHitRate:         b.getHitRate(),
		BranchOptimiseCount:  b.BranchOptimiseCount.Load(),
		BranchOptimiseErrors: b.BranchOptimiseErrors.Load(),
		BranchOptimiseAvgNanos: b.getAvgNanos(b.BranchOptimiseTotalNanos.Load(), b.BranchOptimiseCount.Load()),
	}
}

func (b *BasicMetricsCollector) getAvgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

func (b *BasicMetricsCollector) getHitRate() float64 {
	hits, misses := b.CacheHits.Load(), b.CacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ChunkCount             int64
	ChunkErrors            int64
	ChunkPairs             int64
	ChunkAvgNanos          int64
	FaultInCount           int64
	FaultInErrors          int64
	FaultInAvgNanos        int64
	CacheHits              int64
	CacheMisses            int64
	CacheHitRate           float64
	BranchOptimiseCount    int64
	BranchOptimiseErrors   int64
	BranchOptimiseAvgNanos int64
}
