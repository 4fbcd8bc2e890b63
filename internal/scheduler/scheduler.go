// Package scheduler implements the Loopwork control loop:
// a single-threaded, cooperatively-suspending per-iteration cycle that
// selects a task, prompts the external AI CLI tool through the Executor,
// and interprets the result into completed/retried/failed/quarantined.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nadimtuhin/loopwork/internal/config"
	"github.com/nadimtuhin/loopwork/internal/executor"
	"github.com/nadimtuhin/loopwork/internal/logging"
	"github.com/nadimtuhin/loopwork/internal/plugin"
	"github.com/nadimtuhin/loopwork/internal/reliability"
	"github.com/nadimtuhin/loopwork/internal/rotator"
	"github.com/nadimtuhin/loopwork/internal/state"
	"github.com/nadimtuhin/loopwork/internal/task"
)

// Stats accumulates counters across a run, mirrored into plugin.LoopStats
// on termination.
type Stats struct {
	Iterations int
	Completed  int
	Failed     int
	StartedAt  time.Time
}

// Scheduler wires together every collaborator the loop drives: the task
// Store, the Model Rotator, the CLI Executor, the Plugin Bus, the
// namespace State Store, and a per-(tool,model) circuit breaker manager
// used to detect a systemically unhealthy backend pool independent of
// per-task retry accounting.
type Scheduler struct {
	Store    task.Store
	Rotator  *rotator.Rotator
	Executor *executor.Executor
	Bus      *plugin.Bus
	State    *state.Store
	Config   config.Config
	Log      logging.Logger
	Breakers *reliability.CircuitBreakerManager

	sessionRoot string
	sessionID   string

	// StartingTaskID, if set, is fetched directly on the first iteration
	// instead of calling findNextTask.
	StartingTaskID string
}

// New returns a Scheduler ready to Run. sessionRoot is the directory
// iteration logs are written under (config.Config.SessionRoot(timestamp)).
func New(cfg config.Config, store task.Store, rot *rotator.Rotator, exec *executor.Executor, bus *plugin.Bus, st *state.Store, log logging.Logger, sessionRoot string) *Scheduler {
	return &Scheduler{
		Store:       store,
		Rotator:     rot,
		Executor:    exec,
		Bus:         bus,
		State:       st,
		Config:      cfg,
		Log:         log,
		Breakers:    reliability.NewCircuitBreakerManager(),
		sessionRoot: sessionRoot,
	}
}

// Run drives the loop to one of its three termination conditions: the
// circuit trips, the backlog empties, or maxIterations is reached.
// ctx cancellation is treated the same as a signal: the in-flight task
// is left in-progress, resume state is saved, and the namespace lock is
// released before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.sessionID = uuid.NewString()

	if err := s.State.AcquireLock(ctx); err != nil {
		return fmt.Errorf("scheduler: acquire namespace lock: %w", err)
	}
	releaseOnce := false
	release := func() {
		if releaseOnce {
			return
		}
		releaseOnce = true
		_ = s.State.ReleaseLock()
	}
	defer release()

	if err := os.MkdirAll(filepath.Join(s.sessionRoot, "logs"), 0755); err != nil {
		return fmt.Errorf("scheduler: create session logs dir: %w", err)
	}

	if err := s.Bus.OnLoopStart(ctx, s.Config.Namespace); err != nil {
		s.Log.WithError(err).Warn("onLoopStart: non-critical plugin error")
	}

	stats := Stats{StartedAt: time.Now()}
	consecutiveFailures := 0
	retryCount := 0
	var pendingRetry *retryContext
	backlogEmptied := false

	var runErr error
iterations:
	for iteration := 1; iteration <= s.Config.MaxIterations; iteration++ {
		stats.Iterations = iteration

		select {
		case <-ctx.Done():
			runErr = s.handleCancellation(iteration)
			break iterations
		default:
		}

		// Step 1: circuit breaker.
		if consecutiveFailures >= s.Config.CircuitBreakerThreshold {
			s.Log.Warnf("circuit open after %d consecutive failures", consecutiveFailures)
			if entry, ok := s.Rotator.Peek(); ok {
				if cb, ok := s.Breakers.Get(breakerKey(entry)); ok {
					s.Log.Warnf("pool %s stats at trip time: %+v", breakerKey(entry), cb.GetStats())
				}
			}
			runErr = ErrCircuitOpen
			break
		}

		// Step 2: fresh primary attempt every iteration.
		s.Rotator.ResetFallback()

		// Step 3: choose task.
		t, err := s.selectTask(ctx, iteration)
		if err != nil {
			if err == ErrBacklogEmpty {
				backlogEmptied = true
				runErr = ErrBacklogEmpty
				break
			}
			return fmt.Errorf("scheduler: select task: %w", err)
		}

		// Step 4: persist resume state.
		if err := s.State.SaveState(state.LoopState{
			SessionID:     s.sessionID,
			StartedAt:     stats.StartedAt,
			LastTaskRef:   t.ID,
			LastIteration: iteration,
			LastOutputDir: s.sessionRoot,
		}); err != nil {
			s.Log.WithError(err).Warn("save resume state failed")
		}

		// Step 5: dry run.
		if s.Config.DryRun {
			s.Log.Infof("dry-run: would dispatch task %s (%q)", t.ID, t.Title)
			time.Sleep(time.Duration(s.Config.TaskDelayMS) * time.Millisecond)
			continue
		}

		// Step 6: mark in progress, notify plugins.
		if _, err := s.Store.MarkInProgress(ctx, t.ID); err != nil {
			return fmt.Errorf("scheduler: markInProgress %s: %w", t.ID, err)
		}
		if err := s.Bus.OnTaskStart(ctx, plugin.TaskContext{TaskID: t.ID, Iteration: iteration}); err != nil {
			return fmt.Errorf("scheduler: onTaskStart aborted by critical plugin: %w", err)
		}

		// Step 7: build and persist prompt.
		prompt := buildPrompt(t, pendingRetry)
		promptPath := filepath.Join(s.sessionRoot, "logs", fmt.Sprintf("iteration-%d-prompt.md", iteration))
		if err := os.WriteFile(promptPath, []byte(prompt), 0644); err != nil {
			s.Log.WithError(err).Warn("write prompt log failed")
		}

		// Step 8: dispatch, gated by a per-(tool,model-pool) circuit
		// breaker that trips independently of consecutiveFailures — it
		// protects against a systemically unhealthy pool rather than a
		// single unlucky task.
		outputPath := filepath.Join(s.sessionRoot, "logs", fmt.Sprintf("iteration-%d-output.txt", iteration))
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(s.Config.TimeoutSeconds)*time.Second)
		result, dispatchErr := s.dispatchGated(attemptCtx, prompt, outputPath)
		cancel()
		if dispatchErr != nil {
			return fmt.Errorf("scheduler: dispatch task %s: %w", t.ID, dispatchErr)
		}

		// Step 9: interpret exit status.
		if result.ExitCode == 0 && result.Outcome == executor.OutcomeSuccess {
			if _, err := s.Store.MarkCompleted(ctx, t.ID, tailComment(result.Tail)); err != nil {
				return fmt.Errorf("scheduler: markCompleted %s: %w", t.ID, err)
			}
			if err := s.Bus.OnTaskComplete(ctx, plugin.TaskContext{TaskID: t.ID, Iteration: iteration},
				plugin.TaskResult{Output: result.Tail}); err != nil {
				s.Log.WithError(err).Warn("onTaskComplete: non-critical plugin error")
			}
			retryCount = 0
			pendingRetry = nil
			consecutiveFailures = 0
			stats.Completed++
			s.Log.Successf("task %s completed", t.ID)
		} else {
			if retryCount < s.Config.MaxRetries-1 {
				retryCount++
				if _, err := s.Store.ResetToPending(ctx, t.ID); err != nil {
					return fmt.Errorf("scheduler: resetToPending %s: %w", t.ID, err)
				}
				pendingRetry = &retryContext{attempt: retryCount, outputTail: lastKB(result.Tail)}
				s.Log.Warnf("task %s attempt %d failed, retrying", t.ID, retryCount)
				base := time.Duration(s.Config.RetryDelayMS) * time.Millisecond
				time.Sleep(reliability.LinearBackoff(retryCount, base, base*5))
				continue
			}

			cause := fmt.Errorf("executor: exit %d (timedOut=%v, outcome=%v)", result.ExitCode, result.TimedOut, result.Outcome)
			if _, err := s.Store.MarkFailed(ctx, t.ID, cause); err != nil {
				return fmt.Errorf("scheduler: markFailed %s: %w", t.ID, err)
			}
			if err := s.Bus.OnTaskFailed(ctx, plugin.TaskContext{TaskID: t.ID, Iteration: iteration}, cause); err != nil {
				s.Log.WithError(err).Warn("onTaskFailed: non-critical plugin error")
			}
			retryCount = 0
			pendingRetry = nil
			consecutiveFailures++
			stats.Failed++
			s.Log.Errorf("task %s failed: %v", t.ID, cause)
		}

		// Step 10: inter-iteration delay, stretched by Fibonacci backoff
		// while failures are accumulating so a degrading pool is given
		// increasing breathing room without outright tripping the breaker.
		base := time.Duration(s.Config.TaskDelayMS) * time.Millisecond
		time.Sleep(reliability.FibonacciBackoff(consecutiveFailures, base, base*10))
	}

	duration := time.Since(stats.StartedAt)
	s.logBreakerSummary()
	if err := s.Bus.OnLoopEnd(ctx, plugin.LoopStats{
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Duration:  duration.Milliseconds(),
	}); err != nil {
		s.Log.WithError(err).Warn("onLoopEnd: non-critical plugin error")
	}

	release()
	if backlogEmptied {
		if err := s.State.ClearState(); err != nil {
			s.Log.WithError(err).Warn("clear resume state failed")
		}
	}
	return runErr
}

// selectTask picks the starting task (first iteration only) or the next
// eligible one from the backlog.
func (s *Scheduler) selectTask(ctx context.Context, iteration int) (*task.Task, error) {
	if iteration == 1 && s.StartingTaskID != "" {
		t, err := s.Store.GetTask(ctx, s.StartingTaskID)
		if err != nil {
			return nil, err
		}
		met, err := s.Store.AreDependenciesMet(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if !met {
			return nil, ErrDependencyUnmet
		}
		return t, nil
	}
	filter := task.Filter{Feature: s.Config.Feature}
	t, err := s.Store.FindNextTask(ctx, filter)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrBacklogEmpty
	}
	return t, nil
}

// handleCancellation captures the in-flight task reference, stops the
// subprocess, persists resume state, and lets Run's deferred release()
// drop the namespace lock. The in-flight task is left in-progress
// deliberately — no partial completion is recorded.
func (s *Scheduler) handleCancellation(iteration int) error {
	s.Executor.KillCurrent()
	st := state.LoopState{
		SessionID:     s.sessionID,
		LastIteration: iteration,
		LastOutputDir: s.sessionRoot,
	}
	if prev, err := s.State.LoadState(); err == nil && prev != nil && prev.SessionID == s.sessionID {
		st.StartedAt = prev.StartedAt
		st.LastTaskRef = prev.LastTaskRef
	}
	if err := s.State.SaveState(st); err != nil {
		s.Log.WithError(err).Warn("save resume state on cancellation failed")
	}
	return ErrCanceled
}

// logBreakerSummary logs one line per (tool, model) pool that ever took a
// dispatch attempt this run, so a post-mortem on a failed loop doesn't have
// to reconstruct per-pool health from raw task history.
func (s *Scheduler) logBreakerSummary() {
	if len(s.Breakers.GetAll()) == 0 {
		return
	}
	for _, stats := range s.Breakers.GetStats() {
		s.Log.Infof("pool %v final stats=%+v", stats["name"], stats)
	}
}

// ErrCanceled is returned by Run when ctx is canceled mid-loop. Callers translate this to process exit code 130.
var ErrCanceled = fmt.Errorf("scheduler: canceled")

// tailComment is the comment attached to markCompleted, a short summary
// line rather than the full output.
func tailComment(tail string) string {
	const max = 200
	t := lastKB(tail)
	if len(t) > max {
		return t[len(t)-max:]
	}
	return t
}

// lastKB returns the trailing 1 KiB of s, used to build retryContext from
// a failed attempt's output.
func lastKB(s string) string {
	const kb = 1024
	if len(s) <= kb {
		return s
	}
	return s[len(s)-kb:]
}

// breakerKey names the circuit breaker isolating one (tool, model) pool's
// failures from every other pool in the rotator, so one unhealthy model
// doesn't trip dispatch for the rest.
func breakerKey(entry rotator.Entry) string {
	return fmt.Sprintf("%s:%s", entry.Tool, entry.Model)
}

// dispatchGated wraps Executor.Dispatch in the about-to-be-dispatched-to
// pool member's circuit breaker: a breaker already open short-circuits to
// an executor.Result carrying OutcomeFailure so the caller's normal
// retry/fail/quarantine branching handles it exactly like a failed
// subprocess attempt, while a healthy breaker's success/failure feeds back
// into its own failure count independent of consecutiveFailures. Peek is
// used rather than Next so the breaker lookup never consumes the
// round-robin cursor Dispatch itself advances.
func (s *Scheduler) dispatchGated(ctx context.Context, prompt, outputPath string) (executor.Result, error) {
	key := s.Config.Namespace
	if entry, ok := s.Rotator.Peek(); ok {
		key = breakerKey(entry)
	}
	cb := s.Breakers.GetOrCreate(key, reliability.Config{
		MaxFailures: s.Config.CircuitBreakerThreshold,
	})
	if cb.GetState() == reliability.StateOpen {
		return executor.Result{Outcome: executor.OutcomeFailure}, nil
	}

	var result executor.Result
	cbErr := cb.Execute(ctx, func() error {
		r, err := s.Executor.Dispatch(ctx, s.Rotator, prompt, outputPath, time.Duration(s.Config.TimeoutSeconds)*time.Second)
		if err != nil {
			return err
		}
		result = r
		if r.Outcome != executor.OutcomeSuccess {
			return fmt.Errorf("executor: outcome %v", r.Outcome)
		}
		return nil
	})
	if cbErr != nil && result.Outcome == 0 && result.ExitCode == 0 {
		// Dispatch itself errored (not just a non-success outcome);
		// propagate so Run treats it as a hard failure.
		return result, cbErr
	}
	return result, nil
}
