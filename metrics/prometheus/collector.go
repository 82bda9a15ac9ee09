// Package prometheus provides a lifecycle.MetricsCollector sink
// backed by github.com/prometheus/client_golang, for embedders that
// want to scrape rather than poll BasicMetricsCollector's counters.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vecshelf/lifecycle"
)

// Collector implements lifecycle.MetricsCollector, exporting one
// latency histogram per operation plus row/file throughput counters.
// Grounded on the teacher's own PrometheusObserver
// (examples/observability/main.go): one HistogramVec labeled by
// op/status, plus a handful of purpose counters.
type Collector struct {
	latency *prometheus.HistogramVec
	rows    *prometheus.CounterVec
	gcFiles prometheus.Counter
	gcTables prometheus.Counter
}

// NewCollector builds and registers a Collector against reg. Passing
// nil registers against prometheus.DefaultRegisterer, matching the
// teacher's own prometheus.MustRegister calls against the default
// registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifecycle_operation_latency_seconds",
			Help:    "Latency of engine operations by op and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_rows_processed_total",
			Help: "Rows processed by op",
		}, []string{"op"}),
		gcFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_gc_files_removed_total",
			Help: "Files removed by garbage collection",
		}),
		gcTables: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_gc_tables_removed_total",
			Help: "Tables removed by garbage collection",
		}),
	}
	reg.MustRegister(c.latency, c.rows, c.gcFiles, c.gcTables)
	return c
}

var _ lifecycle.MetricsCollector = (*Collector)(nil)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (c *Collector) RecordInsert(rows int, d time.Duration, err error) {
	c.latency.WithLabelValues("insert", statusLabel(err)).Observe(d.Seconds())
	c.rows.WithLabelValues("insert").Add(float64(rows))
}

func (c *Collector) RecordFlush(rows int, d time.Duration, err error) {
	c.latency.WithLabelValues("flush", statusLabel(err)).Observe(d.Seconds())
	c.rows.WithLabelValues("flush").Add(float64(rows))
}

func (c *Collector) RecordMerge(inputFiles, outputFiles int, d time.Duration, err error) {
	c.latency.WithLabelValues("merge", statusLabel(err)).Observe(d.Seconds())
	c.rows.WithLabelValues("merge_input_files").Add(float64(inputFiles))
	c.rows.WithLabelValues("merge_output_files").Add(float64(outputFiles))
}

func (c *Collector) RecordBuildIndex(d time.Duration, err error) {
	c.latency.WithLabelValues("build_index", statusLabel(err)).Observe(d.Seconds())
}

func (c *Collector) RecordQuery(k, filesSearched int, d time.Duration, err error) {
	c.latency.WithLabelValues("query", statusLabel(err)).Observe(d.Seconds())
	c.rows.WithLabelValues("query_files_searched").Add(float64(filesSearched))
}

func (c *Collector) RecordGC(filesRemoved, tablesRemoved int, d time.Duration, err error) {
	c.latency.WithLabelValues("gc", statusLabel(err)).Observe(d.Seconds())
	c.gcFiles.Add(float64(filesRemoved))
	c.gcTables.Add(float64(tablesRemoved))
}
