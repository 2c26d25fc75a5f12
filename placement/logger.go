package placement

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with placement-specific context. This provides
// structured logging with consistent field names across the engine.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler. If handler is
// nil, uses default text handler to stderr.
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

// NewJSONLogger creates a Logger that outputs JSON-formatted logs. level
// sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
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
		Level: slog.Level(1000), // unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRun adds a run-identifying field to the logger.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run", id),
	}
}

// LogPlacement logs the completion of one query's branch placement.
func (l *Logger) LogPlacement(ctx context.Context, sequenceID uint32, branchID uint32, logl float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "placement failed",
			"sequence_id", sequenceID,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "placement completed",
			"sequence_id", sequenceID,
			"branch_id", branchID,
			"logl", logl,
		)
	}
}

// LogChunk logs the completion of one query-stream chunk cycle.
func (l *Logger) LogChunk(ctx context.Context, chunkSize int, pairs int, isLast bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "chunk cycle failed",
			"chunk_size", chunkSize,
			"pairs", pairs,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "chunk cycle completed",
			"chunk_size", chunkSize,
			"pairs", pairs,
			"is_last", isLast,
		)
	}
}

// LogFaultIn logs a resident-set miss that required recomputing or
// reloading a CLV.
func (l *Logger) LogFaultIn(ctx context.Context, clvIndex int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fault-in failed",
			"clv_index", clvIndex,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "fault-in completed",
			"clv_index", clvIndex,
		)
	}
}

// LogBranchOptimise logs one thorough-placement branch-length optimisation.
func (l *Logger) LogBranchOptimise(ctx context.Context, branchID uint32, rounds int, logl float64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "branch optimisation failed",
			"branch_id", branchID,
			"rounds", rounds,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "branch optimisation completed",
			"branch_id", branchID,
			"rounds", rounds,
			"logl", logl,
		)
	}
}
