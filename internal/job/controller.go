package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftmeeet/CAS/internal/metrics"
	"github.com/ftmeeet/CAS/internal/screening"
)

// Runner executes one analysis run. It must honor ctx cancellation at
// pair boundaries and report milestones/progress through rep.
type Runner func(ctx context.Context, rep ProgressReporter) (*screening.Report, error)

// Controller enforces single-job mutual exclusion and serves status
// snapshots. Stop cancels the running pipeline and waits a bounded time
// for it to yield; a worker that overruns the wait is abandoned and its
// late status writes are discarded via a generation guard.
type Controller struct {
	runner   Runner
	logger   *slog.Logger
	stopWait time.Duration

	status atomic.Pointer[Status]

	mu            sync.Mutex // guards the fields below and state transitions
	cancel        context.CancelFunc
	done          chan struct{}
	generation    uint64
	stopRequested bool
}

// NewController creates an idle controller. stopWait bounds how long
// Stop blocks for the pipeline to acknowledge cancellation.
func NewController(runner Runner, stopWait time.Duration, logger *slog.Logger) *Controller {
	c := &Controller{
		runner:   runner,
		logger:   logger,
		stopWait: stopWait,
	}
	c.status.Store(&Status{State: StateIdle, Message: "idle"})
	return c
}

// Status returns the current snapshot. Lock-free and idempotent:
// repeated calls with no intervening transition return identical values.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// Start launches the pipeline. Returns ErrAlreadyRunning, with no side
// effects, while a job is in flight.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.status.Load(); st.IsRunning {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.stopRequested = false
	c.generation++

	c.status.Store(&Status{
		State:     StateRunning,
		IsRunning: true,
		Progress:  0,
		Message:   "analysis started",
	})
	metrics.AnalysisRunning(true)
	c.logger.Info("analysis job started", "generation", c.generation)

	go c.run(runCtx, c.generation, done)
	return nil
}

// Stop requests cancellation of the running job and blocks until the
// pipeline yields or the bounded wait expires. Idempotent while a stop
// is already in flight.
func (c *Controller) Stop() error {
	c.mu.Lock()
	st := c.status.Load()
	if !st.IsRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	if c.stopRequested {
		c.mu.Unlock()
		return nil
	}
	c.stopRequested = true
	c.status.Store(&Status{
		State:     StateStopping,
		IsRunning: true,
		Progress:  st.Progress,
		Message:   "stopping analysis",
	})
	cancel := c.cancel
	done := c.done
	gen := c.generation
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(c.stopWait):
	}

	// The worker did not yield in time. Abandon it: bump the generation
	// so its eventual status write is discarded, and settle the terminal
	// state here.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return nil
	}
	c.generation++
	c.status.Store(&Status{
		State:    StateStopped,
		Progress: 0,
		Message:  "analysis stopped by user",
	})
	metrics.AnalysisRunning(false)
	c.logger.Warn("analysis worker did not yield within stop wait, abandoned",
		"stop_wait", c.stopWait.String())
	return nil
}

func (c *Controller) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	report, err := c.runner(ctx, &reporter{c: c, gen: gen})

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		// Superseded by a forced stop; never overwrite the settled state.
		return
	}

	metrics.AnalysisRunning(false)
	switch {
	case c.stopRequested:
		c.status.Store(&Status{
			State:    StateStopped,
			Progress: 0,
			Message:  "analysis stopped by user",
		})
		c.logger.Info("analysis job stopped")
	case err != nil && !errors.Is(err, context.Canceled):
		c.status.Store(&Status{
			State:   StateFailed,
			Message: "analysis failed: " + err.Error(),
			Error:   err.Error(),
		})
		c.logger.Error("analysis job failed", "error", err)
	case report != nil && report.Incomplete:
		// Cancelled without an explicit Stop (service shutdown).
		c.status.Store(&Status{
			State:    StateStopped,
			Progress: 0,
			Message:  "analysis interrupted",
		})
		c.logger.Info("analysis job interrupted")
	default:
		c.status.Store(&Status{
			State:    StateCompleted,
			Progress: 100,
			Message:  "analysis complete",
		})
		c.logger.Info("analysis job completed",
			"successful", report.Stats.Successful,
			"conjunctions", report.Stats.Conjunctions,
		)
	}
}

// reporter applies pipeline progress to the shared snapshot. Writes from
// a superseded generation are dropped.
type reporter struct {
	c   *Controller
	gen uint64
}

func (r *reporter) Milestone(message string) {
	r.update(func(st *Status) {
		st.Message = message
	})
	r.c.logger.Info("analysis milestone", "message", message)
}

func (r *reporter) Progress(done, total int) {
	if total <= 0 {
		return
	}
	pct := done * 100 / total
	r.update(func(st *Status) {
		if pct > st.Progress {
			st.Progress = pct
		}
	})
}

func (r *reporter) update(apply func(*Status)) {
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.gen != c.generation || c.stopRequested {
		return
	}
	next := *c.status.Load()
	apply(&next)
	c.status.Store(&next)
}
