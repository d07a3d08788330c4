// Package observability provides structured logging, metrics, and tracing
// for graph runs and the batch controller that drives them.
//
// Logging uses log/slog. Metrics and spans use OpenTelemetry and fall back
// to no-op implementations when disabled. Every logging helper accepts a
// nil logger and does nothing in that case.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "email-42", "finance_clerk", 1)
//	enriched.Info("doing work") // includes run_id, node_id, attempt
func EnrichLogger(logger *slog.Logger, runID, nodeID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a graph run.
func LogRunStart(logger *slog.Logger, runID string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting", slog.String("run_id", runID))
}

// LogRunComplete logs successful graph run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, nodeCount int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
	)
}

// LogRunError logs graph run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting", slog.String("node_id", nodeID))
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogAgentMessage logs the reply an agent produced.
func LogAgentMessage(logger *slog.Logger, sender, content string, toolCalls int) {
	if logger == nil {
		return
	}
	logger.Info("agent replied",
		slog.String("sender", sender),
		slog.String("content", content),
		slog.Int("tool_calls", toolCalls),
	)
}

// LogToolCall logs one tool invocation. A non-nil err is logged at WARN
// since tool failures are reported back to the agent, not raised.
func LogToolCall(logger *slog.Logger, tool, callID string, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("tool call failed",
			slog.String("tool", tool),
			slog.String("call_id", callID),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("tool call completed",
		slog.String("tool", tool),
		slog.String("call_id", callID),
	)
}

// LogDocumentProcessed logs the terminal outcome of one document.
func LogDocumentProcessed(logger *slog.Logger, emailID, status string, attempts int, elapsed time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("document processed",
		slog.String("email_id", emailID),
		slog.String("status", status),
		slog.Int("attempts", attempts),
		slog.Float64("total_time_s", elapsed.Seconds()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that reports the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
