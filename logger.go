package boxdb

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with boxdb-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithEntity adds an entity field to the logger.
func (l *Logger) WithEntity(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("entity", name),
	}
}

// LogOpen logs opening a store.
func (l *Logger) LogOpen(ctx context.Context, dir string, backend Backend, entities int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"dir", dir,
			"backend", backend.String(),
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "store opened",
		"dir", dir,
		"backend", backend.String(),
		"entities", entities,
	)
}

// LogRecovery logs the replay of the commit log.
func (l *Logger) LogRecovery(ctx context.Context, frames int, lastLSN uint64, truncatedBytes int64) {
	if truncatedBytes > 0 {
		l.WarnContext(ctx, "commit log recovered with torn tail",
			"frames", frames,
			"last_lsn", lastLSN,
			"truncated_bytes", truncatedBytes,
		)
		return
	}
	l.DebugContext(ctx, "commit log recovered",
		"frames", frames,
		"last_lsn", lastLSN,
	)
}

// LogCommit logs a write transaction commit.
func (l *Logger) LogCommit(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"duration", duration,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "commit completed",
		"duration", duration,
	)
}

// LogRollback logs a transaction that ended without commit. cause is nil
// for an explicit rollback.
func (l *Logger) LogRollback(ctx context.Context, writable bool, cause error) {
	if cause != nil {
		l.WarnContext(ctx, "transaction rolled back",
			"writable", writable,
			"cause", cause,
		)
		return
	}
	l.DebugContext(ctx, "transaction rolled back",
		"writable", writable,
	)
}

// LogCompact logs a compaction. Negative sizes are unknown and omitted.
func (l *Logger) LogCompact(ctx context.Context, before, after int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compaction failed",
			"error", err,
		)
		return
	}
	var attrs []any
	if before >= 0 {
		attrs = append(attrs, "before_bytes", before)
	}
	if after >= 0 {
		attrs = append(attrs, "after_bytes", after)
	}
	l.InfoContext(ctx, "compaction completed", attrs...)
}

// LogBackup logs a backup.
func (l *Logger) LogBackup(ctx context.Context, id string, records uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"backup_id", id,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "backup completed",
		"backup_id", id,
		"records", records,
		"duration", duration,
	)
}

// LogRestore logs a restore.
func (l *Logger) LogRestore(ctx context.Context, id string, records uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"backup_id", id,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "restore completed",
		"backup_id", id,
		"records", records,
		"duration", duration,
	)
}
