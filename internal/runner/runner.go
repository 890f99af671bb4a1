// Package runner serializes run execution: at most one run at a time.
package runner

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/serptrend/serptrend/internal/run"
	"github.com/serptrend/serptrend/internal/serp"
)

// Runner owns the single-flight guarantee around an orchestrator. Triggered
// runs execute on a detached context so an HTTP request timing out does not
// abort a run already in progress; Cancel is the explicit stop.
type Runner struct {
	orch   *run.Orchestrator
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	latest  *serp.RunSummary

	wg sync.WaitGroup
}

// New builds a Runner around an orchestrator.
func New(orch *run.Orchestrator, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{orch: orch, logger: logger}
}

// Trigger starts a run in the background. It returns ErrRunInProgress if a
// run is already active.
func (r *Runner) Trigger(opts run.Options) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return serp.ErrRunInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()

		summary, err := r.orch.Run(ctx, opts)
		if err != nil {
			r.logger.Warn("background run finished with error", zap.Error(err))
		}

		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.latest = &summary
		r.mu.Unlock()
	}()
	return nil
}

// Cancel requests a cooperative stop of the active run. It reports whether
// a run was active.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Latest returns the most recent finished run summary, if any.
func (r *Runner) Latest() (serp.RunSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return serp.RunSummary{}, false
	}
	return *r.latest, true
}

// Wait blocks until the active run (if any) has finished. Used during
// shutdown after Cancel.
func (r *Runner) Wait() {
	r.wg.Wait()
}
