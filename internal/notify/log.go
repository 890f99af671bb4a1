// Package notify delivers run summaries to operators.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/serptrend/serptrend/internal/serp"
)

// LogNotifier reports run summaries through the process logger. Default
// provider; replaces nothing downstream.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLog builds a LogNotifier.
func NewLog(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the summary, at warn level when the run failed or committed a
// degraded column.
func (n *LogNotifier) Notify(_ context.Context, summary serp.RunSummary) error {
	fields := []zap.Field{
		zap.String("run_id", summary.RunID),
		zap.String("column_date", summary.ColumnDate),
		zap.String("state", string(summary.State)),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("absent_transient", summary.AbsentTransient),
		zap.Int("absent_permanent", summary.AbsentPermanent),
		zap.Int("parse_failures", summary.ParseFailures),
		zap.Int("skipped_empty", summary.SkippedEmpty),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	switch {
	case summary.State == serp.RunStateFailed:
		fields = append(fields,
			zap.String("failed_stage", string(summary.FailedStage)),
			zap.String("error", summary.ErrorText),
		)
		n.logger.Warn("run summary", fields...)
	case summary.Degraded:
		n.logger.Warn("run summary", fields...)
	default:
		n.logger.Info("run summary", fields...)
	}
	return nil
}
