package fallback

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/nadimtuhin/loopwork/internal/reliability"
	"github.com/nadimtuhin/loopwork/internal/task"
)

// Store composes a primary and secondary task.Store. Reads and writes try
// primary first; a Connection-classified failure falls through to
// secondary, and a failure on both queues the write to disk for later
// replay via Drain. A NonConnection failure from either backend surfaces
// immediately — it would not be fixed by retrying elsewhere.
//
// secondary and queue are both optional: a nil secondary makes this a
// primary-only store that queues instead of falling through; a nil queue
// makes dual failures surface instead of being queued.
type Store struct {
	primary   task.Store
	secondary task.Store
	queue     *OfflineQueue
	onSecondary *atomic.Bool
	now       func() time.Time

	checkpoints  *reliability.CheckpointManager
	checkpointOp string

	lastDrainStats []map[string]any
}

// New returns a Store that tries primary, falls through to secondary on
// connection-class failure, and queues writes to queue when both fail.
func New(primary, secondary task.Store, queue *OfflineQueue) *Store {
	return &Store{
		primary:     primary,
		secondary:   secondary,
		queue:       queue,
		onSecondary: atomic.NewBool(false),
		now:         time.Now,
	}
}

// OnSecondary reports whether the most recent operation fell through to
// the secondary backend — the idempotent fallback flag exposed for
// operator visibility (mirrors the rotator's switchToFallback signal).
func (s *Store) OnSecondary() bool { return s.onSecondary.Load() }

func (s *Store) markFallback() {
	s.onSecondary.CompareAndSwap(false, true)
}

func (s *Store) clearFallback() {
	s.onSecondary.CompareAndSwap(true, false)
}

// readThrough runs call against primary, falling through to secondary on a
// Connection-classified error.
func readThrough[T any](s *Store, call func(task.Store) (T, error)) (T, error) {
	v, err := call(s.primary)
	if err == nil {
		s.clearFallback()
		return v, nil
	}
	if Classify(err) != Connection || s.secondary == nil {
		var zero T
		return zero, err
	}
	s.markFallback()
	return call(s.secondary)
}

// writeThrough runs call against primary, falls through to secondary on a
// Connection-classified error, and — if both are unreachable — enqueues
// the write for later replay instead of losing it.
func (s *Store) writeThrough(op, taskID string, args any, call func(task.Store) (*task.Task, error)) (*task.Task, error) {
	t, err := call(s.primary)
	if err == nil {
		s.clearFallback()
		return t, nil
	}
	if Classify(err) != Connection {
		return nil, err
	}
	s.markFallback()

	if s.secondary != nil {
		t, serr := call(s.secondary)
		if serr == nil {
			return t, nil
		}
		if Classify(serr) != Connection {
			return nil, serr
		}
		err = serr
	}

	if s.queue == nil {
		return nil, err
	}
	if qerr := s.queue.Enqueue(op, taskID, args, s.now()); qerr != nil {
		return nil, qerr
	}
	return nil, errors.Wrapf(err, "fallback: %s on %s queued for later replay", op, taskID)
}

func (s *Store) FindNextTask(ctx context.Context, filter task.Filter) (*task.Task, error) {
	return readThrough(s, func(st task.Store) (*task.Task, error) { return st.FindNextTask(ctx, filter) })
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return readThrough(s, func(st task.Store) (*task.Task, error) { return st.GetTask(ctx, id) })
}

func (s *Store) ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	return readThrough(s, func(st task.Store) ([]*task.Task, error) { return st.ListTasks(ctx, filter) })
}

func (s *Store) ListPendingTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	return readThrough(s, func(st task.Store) ([]*task.Task, error) { return st.ListPendingTasks(ctx, filter) })
}

func (s *Store) CountPending(ctx context.Context, filter task.Filter) (int, error) {
	return readThrough(s, func(st task.Store) (int, error) { return st.CountPending(ctx, filter) })
}

func (s *Store) MarkInProgress(ctx context.Context, id string) (*task.Task, error) {
	return s.writeThrough("markInProgress", id, nil, func(st task.Store) (*task.Task, error) {
		return st.MarkInProgress(ctx, id)
	})
}

func (s *Store) MarkCompleted(ctx context.Context, id string, comment string) (*task.Task, error) {
	return s.writeThrough("markCompleted", id, comment, func(st task.Store) (*task.Task, error) {
		return st.MarkCompleted(ctx, id, comment)
	})
}

func (s *Store) MarkFailed(ctx context.Context, id string, cause error) (*task.Task, error) {
	var causeMsg string
	if cause != nil {
		causeMsg = cause.Error()
	}
	return s.writeThrough("markFailed", id, causeMsg, func(st task.Store) (*task.Task, error) {
		return st.MarkFailed(ctx, id, cause)
	})
}

func (s *Store) MarkQuarantined(ctx context.Context, id string, reason string) (*task.Task, error) {
	return s.writeThrough("markQuarantined", id, reason, func(st task.Store) (*task.Task, error) {
		return st.MarkQuarantined(ctx, id, reason)
	})
}

func (s *Store) ResetToPending(ctx context.Context, id string) (*task.Task, error) {
	return s.writeThrough("resetToPending", id, nil, func(st task.Store) (*task.Task, error) {
		return st.ResetToPending(ctx, id)
	})
}

func (s *Store) RescheduleCompleted(ctx context.Context, id string, when *time.Time) (*task.Task, error) {
	return s.writeThrough("rescheduleCompleted", id, when, func(st task.Store) (*task.Task, error) {
		return st.RescheduleCompleted(ctx, id, when)
	})
}

func (s *Store) AddComment(ctx context.Context, id string, text string) (*task.Task, error) {
	return s.writeThrough("addComment", id, text, func(st task.Store) (*task.Task, error) {
		return st.AddComment(ctx, id, text)
	})
}

func (s *Store) SetPriority(ctx context.Context, id string, priority task.Priority) (*task.Task, error) {
	return s.writeThrough("setPriority", id, priority, func(st task.Store) (*task.Task, error) {
		return st.SetPriority(ctx, id, priority)
	})
}

func (s *Store) CreateTask(ctx context.Context, fields task.NewFields) (*task.Task, error) {
	return s.writeThrough("createTask", "", fields, func(st task.Store) (*task.Task, error) {
		return st.CreateTask(ctx, fields)
	})
}

func (s *Store) CreateSubTask(ctx context.Context, parentID string, fields task.NewFields) (*task.Task, error) {
	return s.writeThrough("createSubTask", parentID, fields, func(st task.Store) (*task.Task, error) {
		return st.CreateSubTask(ctx, parentID, fields)
	})
}

func (s *Store) AddDependency(ctx context.Context, id string, dependsOnID string) (*task.Task, error) {
	return s.writeThrough("addDependency", id, dependsOnID, func(st task.Store) (*task.Task, error) {
		return st.AddDependency(ctx, id, dependsOnID)
	})
}

func (s *Store) RemoveDependency(ctx context.Context, id string, dependsOnID string) (*task.Task, error) {
	return s.writeThrough("removeDependency", id, dependsOnID, func(st task.Store) (*task.Task, error) {
		return st.RemoveDependency(ctx, id, dependsOnID)
	})
}

func (s *Store) GetSubTasks(ctx context.Context, id string) ([]*task.Task, error) {
	return readThrough(s, func(st task.Store) ([]*task.Task, error) { return st.GetSubTasks(ctx, id) })
}

func (s *Store) GetDependencies(ctx context.Context, id string) ([]*task.Task, error) {
	return readThrough(s, func(st task.Store) ([]*task.Task, error) { return st.GetDependencies(ctx, id) })
}

func (s *Store) GetDependents(ctx context.Context, id string) ([]*task.Task, error) {
	return readThrough(s, func(st task.Store) ([]*task.Task, error) { return st.GetDependents(ctx, id) })
}

func (s *Store) AreDependenciesMet(ctx context.Context, id string) (bool, error) {
	return readThrough(s, func(st task.Store) (bool, error) { return st.AreDependenciesMet(ctx, id) })
}

// Ping reports primary reachability, falling through to secondary so a
// healthy fallback doesn't read as a total outage.
func (s *Store) Ping(ctx context.Context) task.PingResult {
	res := s.primary.Ping(ctx)
	if res.OK || s.secondary == nil {
		return res
	}
	sres := s.secondary.Ping(ctx)
	sres.Error = res.Error + "; " + sres.Error
	return sres
}

// WithCheckpoints attaches a checkpoint manager Drain reports progress to,
// so a crash mid-drain leaves behind a record of how far it got instead of
// only the queue file itself.
func (s *Store) WithCheckpoints(cm *reliability.CheckpointManager, operationID string) *Store {
	s.checkpoints = cm
	s.checkpointOp = operationID
	return s
}

// Drain replays every queued write against secondary (falling back to
// primary if secondary is nil), in enqueue order, stopping at the first
// failure so ordering is preserved across retries.
func (s *Store) Drain(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	target := s.secondary
	if target == nil {
		target = s.primary
	}

	pending, err := s.queue.ListQueued()
	if err != nil {
		return err
	}

	var op *reliability.OperationCheckpoint
	if s.checkpoints != nil && len(pending) > 0 {
		op = s.checkpoints.StartOperation(s.checkpointOp, len(pending))
	}

	retryConfig := reliability.DefaultRetryConfig()
	retryConfig.RetryableErrors = reliability.IsRetryable

	var stats []map[string]any
	drainErr := s.queue.Drain(func(rec QueuedWrite) error {
		recOp := &reliability.RetryOperation{Name: rec.Op, Config: retryConfig}
		err := recOp.Execute(ctx, func() error {
			return replay(ctx, target, rec)
		})
		stats = append(stats, recOp.GetStats())
		if op != nil && err == nil {
			_ = op.NextStep()
		}
		return err
	})
	s.lastDrainStats = stats

	if op != nil && drainErr == nil {
		_ = s.checkpoints.CleanupCheckpoint(s.checkpointOp)
	}
	return drainErr
}

// DrainStats returns per-record retry statistics from the most recent
// Drain call, keyed in enqueue order: attempt counts, success, and timing
// for each replayed write, useful for diagnosing a slow or flaky
// secondary during a reconnect.
func (s *Store) DrainStats() []map[string]any {
	return s.lastDrainStats
}
