package jsonstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadimtuhin/loopwork/internal/task"
)

func TestOpenCreatesEmptyStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	tasks, err := s.ListTasks(context.Background(), task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateTaskThenFindNext(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := s.CreateTask(ctx, task.NewFields{Title: "first", Description: "do it"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, created.Status)

	next, err := s.FindNextTask(ctx, task.Filter{})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, created.ID, next.ID)
}

func TestFindNextTaskOrdersByPriorityThenID(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.CreateTask(ctx, task.NewFields{Title: "low", Priority: task.PriorityLow})
	require.NoError(t, err)
	high, err := s.CreateTask(ctx, task.NewFields{Title: "high", Priority: task.PriorityHigh})
	require.NoError(t, err)

	next, err := s.FindNextTask(ctx, task.Filter{})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, high.ID, next.ID)
}

func TestMarkInProgressRequiresPending(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	tk, err := s.CreateTask(ctx, task.NewFields{Title: "t"})
	require.NoError(t, err)

	_, err = s.MarkInProgress(ctx, tk.ID)
	require.NoError(t, err)

	_, err = s.MarkInProgress(ctx, tk.ID)
	assert.Error(t, err, "marking an already in-progress task in-progress again is invalid")
}

func TestMarkFailedQuarantinesAfterThreshold(t *testing.T) {
	s, err := Open(t.TempDir(), WithQuarantineThreshold(2))
	require.NoError(t, err)
	ctx := context.Background()

	tk, err := s.CreateTask(ctx, task.NewFields{Title: "t"})
	require.NoError(t, err)
	_, err = s.MarkInProgress(ctx, tk.ID)
	require.NoError(t, err)

	failed, err := s.MarkFailed(ctx, tk.ID, assertError("boom"))
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, failed.Status)
	assert.Equal(t, 1, failed.FailureCount)

	_, err = s.ResetToPending(ctx, tk.ID)
	require.NoError(t, err)
	_, err = s.MarkInProgress(ctx, tk.ID)
	require.NoError(t, err)
	quarantined, err := s.MarkFailed(ctx, tk.ID, assertError("boom again"))
	require.NoError(t, err)
	assert.Equal(t, task.StatusQuarantined, quarantined.Status)
	assert.Equal(t, 2, quarantined.FailureCount)
}

func TestResetToPendingOnPendingIsNoop(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	tk, err := s.CreateTask(ctx, task.NewFields{Title: "t"})
	require.NoError(t, err)

	got, err := s.ResetToPending(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.Empty(t, got.Events, "a no-op reset appends no event")
}

func TestDependenciesGateEligibility(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	dep, err := s.CreateTask(ctx, task.NewFields{Title: "dep"})
	require.NoError(t, err)
	dependent, err := s.CreateTask(ctx, task.NewFields{Title: "dependent"})
	require.NoError(t, err)
	_, err = s.AddDependency(ctx, dependent.ID, dep.ID)
	require.NoError(t, err)

	met, err := s.AreDependenciesMet(ctx, dependent.ID)
	require.NoError(t, err)
	assert.False(t, met)

	pending, err := s.ListPendingTasks(ctx, task.Filter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	assert.NotContains(t, ids, dependent.ID)

	_, err = s.MarkInProgress(ctx, dep.ID)
	require.NoError(t, err)
	_, err = s.MarkCompleted(ctx, dep.ID, "done")
	require.NoError(t, err)

	met, err = s.AreDependenciesMet(ctx, dependent.ID)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestRescheduleCompletedReturnsTaskToPending(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	tk, err := s.CreateTask(ctx, task.NewFields{Title: "t"})
	require.NoError(t, err)
	_, err = s.MarkInProgress(ctx, tk.ID)
	require.NoError(t, err)
	completed, err := s.MarkCompleted(ctx, tk.ID, "done")
	require.NoError(t, err)
	require.NotNil(t, completed.Timestamps.CompletedAt)

	future := completed.Timestamps.UpdatedAt.Add(24 * time.Hour)
	rescheduled, err := s.RescheduleCompleted(ctx, tk.ID, &future)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, rescheduled.Status)
	assert.Nil(t, rescheduled.Timestamps.CompletedAt)
	require.NotNil(t, rescheduled.ScheduledFor)
	assert.True(t, rescheduled.ScheduledFor.Equal(future))

	pending, err := s.ListPendingTasks(ctx, task.Filter{})
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	assert.NotContains(t, ids, tk.ID, "a future scheduledFor excludes the task from immediate eligibility")

	past := completed.Timestamps.UpdatedAt.Add(-time.Hour)
	rescheduled, err = s.RescheduleCompleted(ctx, tk.ID, &past)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, rescheduled.Status)

	pending, err = s.ListPendingTasks(ctx, task.Filter{})
	require.NoError(t, err)
	ids = ids[:0]
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, tk.ID, "a past scheduledFor is immediately eligible again")
}

func TestRescheduleCompletedRejectsNonCompletedTask(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	tk, err := s.CreateTask(ctx, task.NewFields{Title: "t"})
	require.NoError(t, err)

	_, err = s.RescheduleCompleted(ctx, tk.ID, nil)
	assert.Error(t, err)
}

func TestCreateSubTaskInheritsFeature(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	parent, err := s.CreateTask(ctx, task.NewFields{Title: "parent", Feature: "checkout"})
	require.NoError(t, err)

	sub, err := s.CreateSubTask(ctx, parent.ID, task.NewFields{Title: "sub"})
	require.NoError(t, err)
	assert.Equal(t, "checkout", sub.Feature)
	assert.Equal(t, parent.ID, sub.ParentID)
}

type assertError string

func (e assertError) Error() string { return string(e) }
