package main

import (
	"context"
	"fmt"

	"github.com/nadimtuhin/loopwork/internal/scheduler"
	"github.com/nadimtuhin/loopwork/internal/task"
)

// applyResume applies --resume/--resume-reset: --resume alone only
// continues from the persisted {lastTaskRef, lastIteration} without
// touching any in-progress task; --resume-reset additionally resets an
// orphaned in-progress task (one with no live lock holder) back to
// pending before the loop starts. Resuming with no persisted state to
// resume from is an error rather than a silent fresh start.
func applyResume(sched *scheduler.Scheduler, reset bool) error {
	st, err := sched.State.LoadState()
	if err != nil {
		return fmt.Errorf("resume: load state: %w", err)
	}
	if st == nil {
		return scheduler.ErrResumeStateMissing
	}
	sched.StartingTaskID = ""

	if !reset || st.LastTaskRef == "" {
		return nil
	}

	ctx := context.Background()
	t, err := sched.Store.GetTask(ctx, st.LastTaskRef)
	if err != nil {
		return fmt.Errorf("resume: fetch last task %s: %w", st.LastTaskRef, err)
	}
	if t.Status != task.StatusInProgress {
		return nil
	}
	if _, err := sched.Store.ResetToPending(ctx, t.ID); err != nil {
		return fmt.Errorf("resume: reset orphaned task %s: %w", t.ID, err)
	}
	return nil
}
