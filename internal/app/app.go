// Package app wires configuration into concrete components.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/serptrend/serptrend/internal/clock/system"
	"github.com/serptrend/serptrend/internal/config"
	"github.com/serptrend/serptrend/internal/fetch"
	"github.com/serptrend/serptrend/internal/history"
	"github.com/serptrend/serptrend/internal/id/uuid"
	"github.com/serptrend/serptrend/internal/logging"
	"github.com/serptrend/serptrend/internal/notify"
	"github.com/serptrend/serptrend/internal/parse"
	"github.com/serptrend/serptrend/internal/run"
	"github.com/serptrend/serptrend/internal/serp"
	"github.com/serptrend/serptrend/internal/snapshot"
)

// App holds the assembled dependency graph for the CLI commands.
type App struct {
	Config config.Config
	Logger *zap.Logger

	Store     serp.HistoryStore
	Admin     history.Admin
	Source    serp.QuerySource
	Client    serp.SearchClient
	Parser    serp.ResultParser
	Snapshots serp.SnapshotStore
	Notifier  serp.Notifier
	Clock     serp.Clock
	IDs       serp.IDGenerator

	closers []io.Closer
}

// New assembles the application from configuration. Callers must Close the
// returned App to release store and transport resources.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
		IDs:    uuid.New(),
	}

	if err := a.buildStore(ctx, cfg.History); err != nil {
		a.Close()
		return nil, err
	}
	a.Source = history.NewQuerySource(a.Store, logger)

	if err := a.buildClient(cfg.Search); err != nil {
		a.Close()
		return nil, err
	}
	a.Parser = parse.New()

	if err := a.buildSnapshots(ctx, cfg.Snapshots); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildNotifier(ctx, cfg.Notify); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) buildStore(ctx context.Context, cfg config.HistoryConfig) error {
	switch cfg.Driver {
	case "sqlite":
		store, err := history.OpenSQLite(cfg.Path)
		if err != nil {
			return fmt.Errorf("open sqlite history store: %w", err)
		}
		a.Store = store
		a.Admin = store
		a.closers = append(a.closers, store)
	case "postgres":
		store, err := history.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return fmt.Errorf("open postgres history store: %w", err)
		}
		a.Store = store
		a.Admin = store
		a.closers = append(a.closers, store)
	default:
		return fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
	return nil
}

func (a *App) buildClient(cfg config.SearchConfig) error {
	var fetcher fetch.Fetcher
	switch cfg.Fetcher {
	case "headless":
		f, err := fetch.NewHeadlessFetcher(fetch.HeadlessConfig{
			BaseURL:           cfg.BaseURL,
			UserAgent:         cfg.UserAgent,
			Params:            cfg.Params,
			NavigationTimeout: cfg.HeadlessNavTimeout(),
		})
		if err != nil {
			return fmt.Errorf("build headless fetcher: %w", err)
		}
		fetcher = f
		a.closers = append(a.closers, f)
	default:
		f, err := fetch.NewHTTPFetcher(fetch.HTTPConfig{
			BaseURL:   cfg.BaseURL,
			UserAgent: cfg.UserAgent,
			Params:    cfg.Params,
			Timeout:   cfg.RequestTimeout(),
		})
		if err != nil {
			return fmt.Errorf("build http fetcher: %w", err)
		}
		fetcher = f
	}

	a.Client = fetch.NewClient(
		fetcher,
		fetch.NewPacer(cfg.RateLimitDelay()),
		fetch.NewRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax()),
		cfg.RequestTimeout(),
		a.Clock,
		a.Logger,
	)
	return nil
}

func (a *App) buildSnapshots(ctx context.Context, cfg config.SnapshotConfig) error {
	switch cfg.Provider {
	case "local":
		s, err := snapshot.NewLocal(cfg.Dir)
		if err != nil {
			return fmt.Errorf("build local snapshot store: %w", err)
		}
		a.Snapshots = s
	case "gcs":
		s, err := snapshot.NewGCS(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return fmt.Errorf("build gcs snapshot store: %w", err)
		}
		a.Snapshots = s
		a.closers = append(a.closers, s)
	default:
		a.Snapshots = snapshot.NewNoop()
	}
	return nil
}

func (a *App) buildNotifier(ctx context.Context, cfg config.NotifyConfig) error {
	switch cfg.Provider {
	case "pubsub":
		n, err := notify.NewPubSub(ctx, cfg.ProjectID, cfg.Topic)
		if err != nil {
			return fmt.Errorf("build pubsub notifier: %w", err)
		}
		a.Notifier = n
		a.closers = append(a.closers, n)
	default:
		a.Notifier = notify.NewLog(a.Logger)
	}
	return nil
}

// Orchestrator builds a run orchestrator over the assembled components.
func (a *App) Orchestrator() *run.Orchestrator {
	return run.New(
		a.Source,
		a.Client,
		a.Parser,
		a.Store,
		a.Snapshots,
		a.Notifier,
		a.Clock,
		a.IDs,
		a.Logger,
	)
}

// Close releases all owned resources in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn("close component", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
