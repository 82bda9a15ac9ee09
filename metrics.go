package lifecycle

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational
// metrics for this engine's operations. Implement this interface to
// integrate with a monitoring system; see metrics/prometheus for a
// concrete sink. Grounded on the teacher's own metrics.go shape,
// retargeted from insert/search/delete/update to this domain's
// insert/flush/merge/build-index/query/gc operations.
type MetricsCollector interface {
	// RecordInsert is called after each Insert call.
	RecordInsert(rows int, duration time.Duration, err error)

	// RecordFlush is called after each buffer flush.
	RecordFlush(rows int, duration time.Duration, err error)

	// RecordMerge is called after each merge of small RAW files.
	RecordMerge(inputFiles, outputFiles int, duration time.Duration, err error)

	// RecordBuildIndex is called after each build-index attempt.
	RecordBuildIndex(duration time.Duration, err error)

	// RecordQuery is called after each top-K search.
	RecordQuery(k, filesSearched int, duration time.Duration, err error)

	// RecordGC is called after each archive/TTL garbage-collection pass.
	RecordGC(filesRemoved, tablesRemoved int, duration time.Duration, err error)
}

// NoopMetricsCollector discards everything. Used as the default so
// embedding callers don't pay for metrics setup they didn't ask for.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(int, time.Duration, error)             {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error)             {}
func (NoopMetricsCollector) RecordMerge(int, int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordBuildIndex(time.Duration, error)             {}
func (NoopMetricsCollector) RecordQuery(int, int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordGC(int, int, time.Duration, error)           {}

// BasicMetricsCollector provides simple in-memory metrics collection
// via atomic counters, suitable for debugging or scraping without an
// external dependency. Grounded on the teacher's BasicMetricsCollector.
type BasicMetricsCollector struct {
	InsertCount    atomic.Int64
	InsertRows     atomic.Int64
	InsertErrors   atomic.Int64
	FlushCount     atomic.Int64
	FlushRows      atomic.Int64
	FlushErrors    atomic.Int64
	MergeCount     atomic.Int64
	MergeErrors    atomic.Int64
	BuildIndexOK   atomic.Int64
	BuildIndexErr  atomic.Int64
	QueryCount     atomic.Int64
	QueryErrors    atomic.Int64
	QueryTotalNs   atomic.Int64
	GCFilesRemoved atomic.Int64
	GCTablesRemoved atomic.Int64
}

func (b *BasicMetricsCollector) RecordInsert(rows int, _ time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertRows.Add(int64(rows))
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordFlush(rows int, _ time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushRows.Add(int64(rows))
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordMerge(_, _ int, _ time.Duration, err error) {
	b.MergeCount.Add(1)
	if err != nil {
		b.MergeErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordBuildIndex(_ time.Duration, err error) {
	if err != nil {
		b.BuildIndexErr.Add(1)
		return
	}
	b.BuildIndexOK.Add(1)
}

func (b *BasicMetricsCollector) RecordQuery(_, _ int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNs.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordGC(filesRemoved, tablesRemoved int, _ time.Duration, _ error) {
	b.GCFilesRemoved.Add(int64(filesRemoved))
	b.GCTablesRemoved.Add(int64(tablesRemoved))
}
