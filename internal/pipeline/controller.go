package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/browser"
	"github.com/itchlabs/itch/internal/config"
	"github.com/itchlabs/itch/internal/extract"
	"github.com/itchlabs/itch/internal/navigate"
	"github.com/itchlabs/itch/internal/retry"
)

// Controller sequences tasks through the navigator and extractor across a
// fixed pool of lanes. Each lane borrows exactly one session at a time, so
// no browser connection ever sees concurrent commands.
type Controller struct {
	cfg    config.PipelineConfig
	logger *zap.Logger
	mgr    *browser.Manager
	nav    *navigate.Navigator
	ext    *extract.Extractor
	lib    *extract.Library
	policy retry.Policy

	mu    sync.Mutex
	state *RunState
}

// NewController wires the pipeline components together.
func NewController(
	cfg config.PipelineConfig,
	logger *zap.Logger,
	mgr *browser.Manager,
	nav *navigate.Navigator,
	ext *extract.Extractor,
	lib *extract.Library,
) *Controller {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	return &Controller{
		cfg:    cfg,
		logger: logger.Named("controller"),
		mgr:    mgr,
		nav:    nav,
		ext:    ext,
		lib:    lib,
		policy: retry.Policy{
			MaxAttempts: attempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
	}
}

// Run consumes the ordered task list and returns a channel carrying exactly
// one terminal event per task. The channel closes after the last event. Each
// call starts a fresh RunState; one finished sequence is not restartable, but
// the controller itself can run again. The session manager stays open between
// runs; its owner shuts it down.
//
// With a single lane, events preserve task input order. With multiple lanes
// each task is attempted by exactly one lane, but no cross-task ordering is
// guaranteed.
func (c *Controller) Run(ctx context.Context, tasks []schemas.Task) <-chan schemas.Event {
	state := &RunState{}
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	// Buffered for the full run so no emitter ever blocks on a slow reader
	// holding a session.
	events := make(chan schemas.Event, len(tasks))
	taskCh := make(chan schemas.Task)

	lanes := c.cfg.Lanes
	if lanes < 1 {
		lanes = 1
	}

	var g errgroup.Group
	for lane := 0; lane < lanes; lane++ {
		lane := lane
		g.Go(func() error {
			laneLogger := c.logger.With(zap.Int("lane", lane))
			for task := range taskCh {
				events <- c.runTask(ctx, state, task, laneLogger)
			}
			return nil
		})
	}

	go func() {
		for i, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				// Tasks that never started still get a terminal event;
				// nothing is silently dropped on cancellation.
				for _, skipped := range tasks[i:] {
					state.taskAttempted()
					state.taskFailed()
					events <- schemas.Event{
						TaskID:  skipped.ID,
						Outcome: schemas.OutcomeFailed,
						Err:     fmt.Errorf("%w: %v", schemas.ErrCancelled, ctx.Err()),
					}
				}
				close(taskCh)
				goto drain
			}
		}
		close(taskCh)

	drain:
		// Lanes never return errors; Wait only synchronizes.
		_ = g.Wait()
		close(events)
	}()

	return events
}

// RunToSink drains a run into the sink and returns the final summary.
// Sink failures are logged but do not abort the run: a full pipeline pass
// with a broken sink still reports accurate outcome counts.
func (c *Controller) RunToSink(ctx context.Context, tasks []schemas.Task, sink schemas.Sink) Summary {
	for ev := range c.Run(ctx, tasks) {
		if err := sink.Emit(context.WithoutCancel(ctx), ev); err != nil {
			c.logger.Error("Sink rejected event.",
				zap.String("task_id", ev.TaskID), zap.Error(err))
		}
	}
	return c.Summary()
}

// Summary snapshots the counters of the current (or most recent) run.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return Summary{}
	}
	return c.state.Snapshot()
}

// runTask drives one task to a terminal state: Succeeded, or Failed after
// the retry budget is spent. Transient errors are retried with exponential
// backoff; schema mismatches and session start failures are fatal at once.
func (c *Controller) runTask(ctx context.Context, state *RunState, task schemas.Task, logger *zap.Logger) schemas.Event {
	state.taskAttempted()
	logger = logger.With(zap.String("task_id", task.ID))

	schema, ok := c.lib.Get(task.Schema)
	if !ok {
		state.taskFailed()
		return schemas.Event{
			TaskID:  task.ID,
			Outcome: schemas.OutcomeFailed,
			Err:     &schemas.SchemaConfigError{Detail: fmt.Sprintf("task %q references unknown schema %q", task.ID, task.Schema)},
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		attempts = attempt

		record, err := c.attempt(ctx, task, schema)
		if err == nil {
			state.taskSucceeded()
			logger.Info("Task succeeded.", zap.Int("attempts", attempt))
			return schemas.Event{
				TaskID:   task.ID,
				Outcome:  schemas.OutcomeSucceeded,
				Record:   record,
				Attempts: attempt,
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if !retryableAttempt(ctx, err) {
			logger.Warn("Task failed with a fatal error.", zap.Error(err))
			break
		}
		if attempt < c.policy.MaxAttempts {
			state.taskRetried()
			logger.Warn("Task attempt failed; retrying.",
				zap.Int("attempt", attempt), zap.Error(err))
			if err := c.policy.Sleep(ctx, attempt); err != nil {
				break
			}
		}
	}

	state.taskFailed()
	if ctx.Err() != nil {
		lastErr = fmt.Errorf("%w: %v", schemas.ErrCancelled, lastErr)
	}
	logger.Error("Task failed permanently.", zap.Error(lastErr))
	return schemas.Event{
		TaskID:   task.ID,
		Outcome:  schemas.OutcomeFailed,
		Err:      lastErr,
		Attempts: attempts,
	}
}

// attempt performs one full pass over a task: borrow a session, load the
// page, run the interaction script, extract. The session is always released
// with its observed health so dead ones are replaced before the next borrow.
func (c *Controller) attempt(ctx context.Context, task schemas.Task, schema schemas.ExtractionSchema) (*schemas.Record, error) {
	if c.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.TaskTimeout)
		defer cancel()
	}

	s, err := c.mgr.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		c.mgr.Release(s, s.HealthState())
	}()

	if err := c.nav.Load(ctx, s, task.URL, task.Ready); err != nil {
		return nil, err
	}
	for _, action := range task.Actions {
		if err := c.nav.Act(ctx, s, action); err != nil {
			return nil, err
		}
	}

	record, err := c.ext.Extract(ctx, s, schema)
	if err != nil {
		return nil, err
	}
	record.TaskID = task.ID
	return record, nil
}

// retryableAttempt extends the error taxonomy's classification with the
// per-attempt task timeout: a deadline blown inside one attempt is worth a
// fresh attempt as long as the run itself is still live.
func retryableAttempt(ctx context.Context, err error) bool {
	if schemas.Retryable(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}
