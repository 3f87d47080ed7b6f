package boxdb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    putCounter     prometheus.Counter
//	    queryHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordPut(duration time.Duration, err error) {
//	    p.putCounter.Inc()
//	}
type MetricsCollector interface {
	// RecordPut is called after each Cursor.Put.
	RecordPut(duration time.Duration, err error)

	// RecordGet is called after each Cursor.Get.
	RecordGet(duration time.Duration, err error)

	// RecordRemove is called after each Cursor.Remove.
	RecordRemove(duration time.Duration, err error)

	// RecordQuery is called after each query executed through a Cursor.
	// results is the number of records returned or removed.
	RecordQuery(results int, duration time.Duration, err error)

	// RecordCommit is called after each commit of a write transaction.
	// duration is the lifetime of the transaction.
	RecordCommit(duration time.Duration, err error)

	// RecordRollback is called when a transaction ends without commit.
	RecordRollback(duration time.Duration, cause error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)        {}
func (NoopMetricsCollector) RecordGet(time.Duration, error)        {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)     {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommit(time.Duration, error)     {}
func (NoopMetricsCollector) RecordRollback(time.Duration, error)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	PutCount        atomic.Int64
	PutErrors       atomic.Int64
	PutTotalNanos   atomic.Int64
	GetCount        atomic.Int64
	GetErrors       atomic.Int64
	RemoveCount     atomic.Int64
	RemoveErrors    atomic.Int64
	QueryCount      atomic.Int64
	QueryErrors     atomic.Int64
	QueryResults    atomic.Int64
	QueryTotalNanos atomic.Int64
	CommitCount     atomic.Int64
	CommitErrors    atomic.Int64
	RollbackCount   atomic.Int64
	AbortCount      atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(_ time.Duration, err error) {
	b.GetCount.Add(1)
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(_ time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryResults.Add(int64(results))
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(_ time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
	}
}

// RecordRollback implements MetricsCollector. Rollbacks caused by an error
// are also counted as aborts.
func (b *BasicMetricsCollector) RecordRollback(_ time.Duration, cause error) {
	b.RollbackCount.Add(1)
	if cause != nil {
		b.AbortCount.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PutCount:      b.PutCount.Load(),
		PutErrors:     b.PutErrors.Load(),
		PutAvgNanos:   avg(b.PutTotalNanos.Load(), b.PutCount.Load()),
		GetCount:      b.GetCount.Load(),
		GetErrors:     b.GetErrors.Load(),
		RemoveCount:   b.RemoveCount.Load(),
		RemoveErrors:  b.RemoveErrors.Load(),
		QueryCount:    b.QueryCount.Load(),
		QueryErrors:   b.QueryErrors.Load(),
		QueryResults:  b.QueryResults.Load(),
		QueryAvgNanos: avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		CommitCount:   b.CommitCount.Load(),
		CommitErrors:  b.CommitErrors.Load(),
		RollbackCount: b.RollbackCount.Load(),
		AbortCount:    b.AbortCount.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PutCount      int64
	PutErrors     int64
	PutAvgNanos   int64
	GetCount      int64
	GetErrors     int64
	RemoveCount   int64
	RemoveErrors  int64
	QueryCount    int64
	QueryErrors   int64
	QueryResults  int64
	QueryAvgNanos int64
	CommitCount   int64
	CommitErrors  int64
	RollbackCount int64
	AbortCount    int64
}
