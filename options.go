package lifecycle

import "time"

// Config holds the recognized options of spec section 6's
// configuration surface. Populated via functional options, mirroring
// the teacher's own options.go pattern. Parsing an external format
// (YAML/flags/env) into a Config is explicitly out of scope; this
// struct is the parsed result, not a parser.
type Config struct {
	// Path is the catalog and data root directory.
	Path string

	// WALEnable turns off WAL durability entirely when false, useful
	// only for throwaway/benchmark instances.
	WALEnable bool

	// BufferSize is the per-table in-memory buffer flush threshold, in bytes.
	BufferSize int64

	// ArchiveDays soft-deletes serving files older than this many
	// days on each archive pass. Zero disables day-based archiving.
	ArchiveDays int

	// ArchiveDiskBytes bounds total serving-file bytes summed across
	// all tables; the oldest files are soft-deleted in batches until
	// under the limit.
	// Zero disables disk-based archiving.
	ArchiveDiskBytes int64

	// BuildIndexThreshold is the row count at which a RAW file is
	// promoted to TO_INDEX.
	BuildIndexThreshold int64

	// TTL is how long a TO_DELETE/BACKUP file survives before
	// CleanUpFilesWithTTL removes it for good. A TO_DELETE table row
	// has no TTL of its own: it is removed by the first pass that
	// finds none of its files left.
	TTL time.Duration

	// MergeInterval, BuildIndexInterval, ArchiveInterval are the
	// background loop tick periods (spec 4.2's "timer-driven").
	MergeInterval      time.Duration
	BuildIndexInterval time.Duration
	ArchiveInterval    time.Duration

	// FlushInterval is the timer-driven flush trigger from spec 4.3
	// ("Driven by: explicit Flush(), buffer-byte threshold, or a
	// timer"). Zero disables the timer trigger, leaving only the
	// explicit call and the byte threshold.
	FlushInterval time.Duration

	// BuildIndexWorkers bounds the build-index worker pool
	// concurrency (spec section 5's "bounded thread pool").
	BuildIndexWorkers int

	// MaxBuildFailures is the M in spec 4.2's "after M consecutive
	// failures the file is blacklisted from build for the process
	// lifetime".
	MaxBuildFailures int

	// BuildIndexRatePerSec caps how many files per second the
	// build-index loop hands to the external ANN builder. Zero means
	// unlimited, matching the teacher's resource.Controller default
	// of an unthrottled io limiter when none is configured.
	BuildIndexRatePerSec float64

	Logger  *Logger
	Metrics MetricsCollector
}

// DefaultConfig returns a Config with the section-6 defaults: WAL on,
// a 16MiB buffer threshold, no archiving, a 100,000-row build-index
// threshold, a 24-hour GC TTL, and modest background-loop cadences.
func DefaultConfig() Config {
	return Config{
		WALEnable:           true,
		BufferSize:          16 << 20,
		BuildIndexThreshold: 100_000,
		TTL:                 24 * time.Hour,
		MergeInterval:       30 * time.Second,
		BuildIndexInterval:  time.Minute,
		ArchiveInterval:     time.Hour,
		FlushInterval:       10 * time.Second,
		BuildIndexWorkers:   2,
		MaxBuildFailures:    5,
		Logger:              NoopLogger(),
		Metrics:             NoopMetricsCollector{},
	}
}

// Option configures a Config.
type Option func(*Config)

// WithPath sets the catalog and data root directory.
func WithPath(path string) Option {
	return func(c *Config) { c.Path = path }
}

// WithWALEnable toggles WAL durability.
func WithWALEnable(enable bool) Option {
	return func(c *Config) { c.WALEnable = enable }
}

// WithBufferSize sets the per-table flush-threshold byte size.
func WithBufferSize(bytes int64) Option {
	return func(c *Config) { c.BufferSize = bytes }
}

// WithArchivePolicy sets the day- and disk-based retention policies.
func WithArchivePolicy(days int, diskBytes int64) Option {
	return func(c *Config) {
		c.ArchiveDays = days
		c.ArchiveDiskBytes = diskBytes
	}
}

// WithBuildIndexThreshold sets the row count at which a RAW file is
// promoted to TO_INDEX.
func WithBuildIndexThreshold(rows int64) Option {
	return func(c *Config) { c.BuildIndexThreshold = rows }
}

// WithTTL sets the GC TTL for soft-deleted entities.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) { c.TTL = ttl }
}

// WithBackgroundIntervals overrides the merge/build-index/archive loop
// cadences.
func WithBackgroundIntervals(merge, buildIndex, archive time.Duration) Option {
	return func(c *Config) {
		c.MergeInterval = merge
		c.BuildIndexInterval = buildIndex
		c.ArchiveInterval = archive
	}
}

// WithFlushInterval sets the timer-driven flush cadence. Zero
// disables the timer trigger.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Config) { c.FlushInterval = d }
}

// WithBuildIndexWorkers bounds the build-index worker pool concurrency.
func WithBuildIndexWorkers(n int) Option {
	return func(c *Config) { c.BuildIndexWorkers = n }
}

// WithMaxBuildFailures sets the consecutive-failure count after which
// a file is permanently blacklisted from build-index dispatch.
func WithMaxBuildFailures(n int) Option {
	return func(c *Config) { c.MaxBuildFailures = n }
}

// WithBuildIndexRateLimit caps build-index dispatch throughput.
func WithBuildIndexRateLimit(perSec float64) Option {
	return func(c *Config) { c.BuildIndexRatePerSec = perSec }
}

// WithLogger sets the logger used across every component.
func WithLogger(l *Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the metrics collector used across every component.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Config) { c.Metrics = m }
}
