// Package observability provides structured logging, metrics, and tracing
// for graph construction and run aggregation.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with run_id and element_key fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "root.review")
//	enriched.Info("doing work") // includes run_id, element_key
func EnrichLogger(logger *slog.Logger, runID, elementKey string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("element_key", elementKey),
	)
}

// LogBuildStart logs the start of a graph build.
func LogBuildStart(logger *slog.Logger, rootKey string) {
	if logger == nil {
		return
	}
	logger.Debug("graph build starting",
		slog.String("root_key", rootKey),
	)
}

// LogBuildComplete logs a finished graph build.
func LogBuildComplete(logger *slog.Logger, rootKey string, durationMs float64, nodeCount int, endedInError bool) {
	if logger == nil {
		return
	}
	logger.Info("graph build completed",
		slog.String("root_key", rootKey),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes", nodeCount),
		slog.Bool("ended_in_error", endedInError),
	)
}

// LogBuildError logs a graph build that returned an error.
func LogBuildError(logger *slog.Logger, rootKey string, err error) {
	if logger == nil {
		return
	}
	logger.Error("graph build failed",
		slog.String("root_key", rootKey),
		slog.String("error", err.Error()),
	)
}

// LogRecursionLimit logs a subtree abandoned at the recursion limit.
func LogRecursionLimit(logger *slog.Logger, elementKey string, limit int) {
	if logger == nil {
		return
	}
	logger.Warn("recursion limit reached",
		slog.String("element_key", elementKey),
		slog.Int("limit", limit),
	)
}

// LogStepFinished logs a run step reaching a terminal status.
func LogStepFinished(logger *slog.Logger, stepID, elementType, status string) {
	if logger == nil {
		return
	}
	logger.Debug("step finished",
		slog.String("step_id", stepID),
		slog.String("element_type", elementType),
		slog.String("status", status),
	)
}

// LogFinalize logs run finalization with the attributed token usage.
// The logger is expected to carry run_id already.
func LogFinalize(logger *slog.Logger, prompt, completion, reasoning int) {
	if logger == nil {
		return
	}
	logger.Info("run finalized",
		slog.Int("prompt_tokens", prompt),
		slog.Int("completion_tokens", completion),
		slog.Int("reasoning_tokens", reasoning),
	)
}

// LogFinalizeError logs a non-fatal failure during finalization.
func LogFinalizeError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("run finalize incomplete",
		slog.String("error", err.Error()),
	)
}

// LogRehydrateDrop logs a stored data-model value dropped during rehydration.
func LogRehydrateDrop(logger *slog.Logger, scope, field string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("dropping invalid data-model value on rehydrate",
		slog.String("scope", scope),
		slog.String("field", field),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
