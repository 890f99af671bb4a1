// Package run implements the per-run synchronization pipeline.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/serptrend/serptrend/internal/logging"
	"github.com/serptrend/serptrend/internal/metrics"
	"github.com/serptrend/serptrend/internal/serp"
)

// Orchestrator drives one run: load queries, fetch and parse each row
// sequentially, then commit a new dated column atomically.
type Orchestrator struct {
	source    serp.QuerySource
	client    serp.SearchClient
	parser    serp.ResultParser
	store     serp.HistoryStore
	snapshots serp.SnapshotStore
	notifier  serp.Notifier
	clock     serp.Clock
	ids       serp.IDGenerator
	logger    *zap.Logger
}

// Options are the per-run knobs.
type Options struct {
	// Overwrite allows replacing an existing column for the run date.
	Overwrite bool
	// Date pins the column date; zero means the clock's current day.
	Date time.Time
}

// New constructs an Orchestrator. Snapshots and notifier may be nil.
func New(
	source serp.QuerySource,
	client serp.SearchClient,
	parser serp.ResultParser,
	store serp.HistoryStore,
	snapshots serp.SnapshotStore,
	notifier serp.Notifier,
	clock serp.Clock,
	ids serp.IDGenerator,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		source:    source,
		client:    client,
		parser:    parser,
		store:     store,
		snapshots: snapshots,
		notifier:  notifier,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
}

// Run executes one full run and returns its summary. Per-row failures are
// converted to absent cells; fatal errors abort before anything is
// committed and are returned alongside the failed summary.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (serp.RunSummary, error) {
	runID, err := o.ids.NewID()
	if err != nil {
		runID = "run"
	}
	logger := logging.WithRun(o.logger, runID)

	date := opts.Date
	if date.IsZero() {
		date = o.clock.Now()
	}

	summary := serp.RunSummary{
		RunID:      runID,
		ColumnDate: date.Format(serp.ColumnDateLayout),
		State:      serp.RunStateInit,
		StartedAt:  o.clock.Now(),
	}

	logger.Info("run starting",
		zap.String("column_date", summary.ColumnDate),
		zap.Bool("overwrite", opts.Overwrite),
	)

	summary.State = serp.RunStateLoading
	queries, skipped, err := o.source.List(ctx)
	if err != nil {
		return o.fail(ctx, logger, summary, serp.RunStateLoading, err)
	}
	summary.SkippedEmpty = skipped
	for i := 0; i < skipped; i++ {
		metrics.ObserveRow("skipped")
	}

	results := make(map[string]serp.SearchResult, len(queries))
	for i, q := range queries {
		// Cooperative stop, checked between rows, never mid-fetch.
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, logger, summary, serp.RunStateFetching,
				fmt.Errorf("run cancelled after %d of %d rows: %w", i, len(queries), err))
		}

		summary.State = serp.RunStateFetching
		rowLogger := logger.With(zap.String("row_id", q.RowID), zap.String("query", q.Text))
		resp, err := o.client.Fetch(ctx, q.Text)
		if err != nil {
			if ctx.Err() != nil {
				return o.fail(ctx, logger, summary, serp.RunStateFetching,
					fmt.Errorf("run cancelled during fetch: %w", ctx.Err()))
			}
			reason := serp.AbsenceTransient
			if serp.IsPermanentFetch(err) {
				reason = serp.AbsencePermanent
			}
			o.recordAbsent(&summary, results, q, reason)
			rowLogger.Warn("fetch failed, recording absent cell",
				zap.String("reason", string(reason)),
				zap.Error(err),
			)
			continue
		}

		summary.State = serp.RunStateParsing
		count, err := o.parser.Parse(resp)
		if err != nil {
			o.recordAbsent(&summary, results, q, serp.AbsenceParse)
			uri := o.snapshotResponse(ctx, runID, q.RowID, resp)
			rowLogger.Warn("parse failed, recording absent cell",
				zap.String("snapshot_uri", uri),
				zap.Error(err),
			)
			continue
		}

		results[q.RowID] = serp.SearchResult{
			Query:     q,
			Count:     count,
			FetchedAt: resp.FetchedAt,
		}
		summary.Succeeded++
		metrics.ObserveRow("succeeded")
		rowLogger.Debug("row collected", zap.Int64("count", count))
	}

	if err := ctx.Err(); err != nil {
		return o.fail(ctx, logger, summary, serp.RunStateCommitting,
			fmt.Errorf("run cancelled before commit: %w", err))
	}

	summary.State = serp.RunStateCommitting
	if err := o.commit(ctx, summary.ColumnDate, opts.Overwrite, queries, results); err != nil {
		if rbErr := o.store.Rollback(ctx); rbErr != nil {
			logger.Warn("rollback after failed commit", zap.Error(rbErr))
		}
		return o.fail(ctx, logger, summary, serp.RunStateCommitting, err)
	}

	summary.State = serp.RunStateDone
	summary.Degraded = summary.Succeeded < len(queries)
	summary.FinishedAt = o.clock.Now()
	metrics.ObserveRun(string(serp.RunStateDone), summary.FinishedAt.Sub(summary.StartedAt))

	if summary.Degraded {
		logger.Warn("run committed degraded column",
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("absent_transient", summary.AbsentTransient),
			zap.Int("absent_permanent", summary.AbsentPermanent),
			zap.Int("parse_failures", summary.ParseFailures),
		)
	} else {
		logger.Info("run committed", zap.Int("succeeded", summary.Succeeded))
	}
	o.notify(ctx, logger, summary)
	return summary, nil
}

func (o *Orchestrator) commit(
	ctx context.Context,
	date string,
	overwrite bool,
	queries []serp.Query,
	results map[string]serp.SearchResult,
) error {
	col, err := o.store.AppendColumn(ctx, date, overwrite)
	if err != nil {
		return fmt.Errorf("append column: %w", err)
	}
	for _, q := range queries {
		var cell *int64
		if r, ok := results[q.RowID]; ok && !r.Absent {
			v := r.Count
			cell = &v
		}
		if err := o.store.WriteCell(ctx, q.RowID, col, cell); err != nil {
			return fmt.Errorf("write cell: %w", err)
		}
	}
	if err := o.store.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (o *Orchestrator) recordAbsent(
	summary *serp.RunSummary,
	results map[string]serp.SearchResult,
	q serp.Query,
	reason serp.AbsenceReason,
) {
	results[q.RowID] = serp.SearchResult{
		Query:     q,
		Absent:    true,
		Reason:    reason,
		FetchedAt: o.clock.Now(),
	}
	switch reason {
	case serp.AbsenceTransient:
		summary.AbsentTransient++
		metrics.ObserveRow("transient")
	case serp.AbsenceParse:
		summary.AbsentPermanent++
		summary.ParseFailures++
		metrics.ObserveRow("parse")
	default:
		summary.AbsentPermanent++
		metrics.ObserveRow("permanent")
	}
}

func (o *Orchestrator) snapshotResponse(ctx context.Context, runID, rowID string, resp serp.RawResponse) string {
	if o.snapshots == nil {
		return ""
	}
	path := fmt.Sprintf("%s/%s.html", runID, rowID)
	uri, err := o.snapshots.Put(ctx, path, "text/html; charset=utf-8", resp.Body)
	if err != nil {
		o.logger.Warn("store response snapshot", zap.Error(err))
		return ""
	}
	return uri
}

func (o *Orchestrator) fail(
	ctx context.Context,
	logger *zap.Logger,
	summary serp.RunSummary,
	stage serp.RunState,
	err error,
) (serp.RunSummary, error) {
	summary.State = serp.RunStateFailed
	summary.FailedStage = stage
	summary.ErrorText = err.Error()
	summary.FinishedAt = o.clock.Now()
	metrics.ObserveRun(string(serp.RunStateFailed), summary.FinishedAt.Sub(summary.StartedAt))

	logger.Error("run failed",
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
	o.notify(ctx, logger, summary)
	return summary, err
}

func (o *Orchestrator) notify(ctx context.Context, logger *zap.Logger, summary serp.RunSummary) {
	if o.notifier == nil {
		return
	}
	// Notification must not depend on the (possibly cancelled) run context.
	notifyCtx := ctx
	if notifyCtx.Err() != nil {
		var cancel context.CancelFunc
		notifyCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	if err := o.notifier.Notify(notifyCtx, summary); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("deliver run summary", zap.Error(err))
	}
}
