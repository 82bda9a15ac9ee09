package lifecycle

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with the field names used consistently
// across the catalog, WAL, scheduler, and query packages.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps an existing slog.Handler. A nil handler falls back
// to a text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger returns a Logger emitting JSON records at the given level.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger returns a Logger emitting human-readable records at the given level.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger discards everything. Used as the default so embedding
// callers don't pay for logging setup they didn't ask for.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// WithTable scopes a logger to a single table_id.
func (l *Logger) WithTable(tableID string) *Logger {
	return &Logger{Logger: l.Logger.With("table_id", tableID)}
}

// WithFile scopes a logger to a single file_id.
func (l *Logger) WithFile(fileID string) *Logger {
	return &Logger{Logger: l.Logger.With("file_id", fileID)}
}

// LogFlush logs a WAL buffer flush.
func (l *Logger) LogFlush(ctx context.Context, tableID string, rowCount int, lsn uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed", "table_id", tableID, "row_count", rowCount, "error", err)
		return
	}
	l.InfoContext(ctx, "flush completed", "table_id", tableID, "row_count", rowCount, "lsn", lsn)
}

// LogMerge logs a compaction merge of input files into output files.
func (l *Logger) LogMerge(ctx context.Context, tableID string, inputs, outputs int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "merge failed", "table_id", tableID, "inputs", inputs, "error", err)
		return
	}
	l.InfoContext(ctx, "merge completed", "table_id", tableID, "inputs", inputs, "outputs", outputs)
}

// LogBuildIndex logs an index build for a single file.
func (l *Logger) LogBuildIndex(ctx context.Context, fileID string, attempt int, err error) {
	if err != nil {
		l.WarnContext(ctx, "index build failed", "file_id", fileID, "attempt", attempt, "error", err)
		return
	}
	l.InfoContext(ctx, "index build completed", "file_id", fileID, "attempt", attempt)
}

// LogBlacklist logs a file being permanently excluded from index builds.
func (l *Logger) LogBlacklist(ctx context.Context, fileID string, failures int) {
	l.WarnContext(ctx, "file blacklisted from build", "file_id", fileID, "failures", failures)
}

// LogGC logs a garbage-collection pass.
func (l *Logger) LogGC(ctx context.Context, filesRemoved, tablesRemoved int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "gc pass failed", "error", err)
		return
	}
	l.InfoContext(ctx, "gc pass completed", "files_removed", filesRemoved, "tables_removed", tablesRemoved)
}

// LogQuery logs a top-K query.
func (l *Logger) LogQuery(ctx context.Context, tableID string, k, filesSearched, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed", "table_id", tableID, "k", k, "error", err)
		return
	}
	l.DebugContext(ctx, "query completed", "table_id", tableID, "k", k, "files_searched", filesSearched, "results", resultsFound)
}

// LogRecovery logs WAL replay at startup.
func (l *Logger) LogRecovery(ctx context.Context, tableID string, recordsReplayed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "wal recovery failed", "table_id", tableID, "error", err)
		return
	}
	l.InfoContext(ctx, "wal recovery completed", "table_id", tableID, "records_replayed", recordsReplayed)
}
