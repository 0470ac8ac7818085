package vectra

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vectra-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithID adds an item id field to the logger.
func (l *Logger) WithID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// WithURI adds a document URI field to the logger.
func (l *Logger) WithURI(uri string) *Logger {
	return &Logger{
		Logger: l.Logger.With("uri", uri),
	}
}

// LogInsert logs an item insert operation.
func (l *Logger) LogInsert(ctx context.Context, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"id", id,
		)
	}
}

// LogBatchInsert logs a batch insert operation.
func (l *Logger) LogBatchInsert(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch insert failed",
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "batch insert completed",
			"count", count,
		)
	}
}

// LogQuery logs an item query operation.
func (l *Logger) LogQuery(ctx context.Context, topK, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"top_k", topK,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"top_k", topK,
			"results", resultsFound,
		)
	}
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"id", id,
		)
	}
}

// LogCommit logs a transaction commit.
func (l *Logger) LogCommit(ctx context.Context, items int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"items", items,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "commit completed",
			"items", items,
		)
	}
}

// LogUpsertDocument logs a document upsert operation.
func (l *Logger) LogUpsertDocument(ctx context.Context, uri string, chunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "document upsert failed",
			"uri", uri,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "document upsert completed",
			"uri", uri,
			"chunks", chunks,
		)
	}
}

// LogDeleteDocument logs a document delete operation.
func (l *Logger) LogDeleteDocument(ctx context.Context, uri string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "document delete failed",
			"uri", uri,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "document delete completed",
			"uri", uri,
		)
	}
}
