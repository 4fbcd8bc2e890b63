package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nadimtuhin/loopwork/internal/config"
	"github.com/nadimtuhin/loopwork/internal/scheduler"
	"github.com/nadimtuhin/loopwork/internal/state"
	"github.com/nadimtuhin/loopwork/internal/store/jsonstore"
	"github.com/nadimtuhin/loopwork/internal/task"
)

func configForTest() config.Config {
	return config.Defaults()
}

func newTestScheduler(t *testing.T) (*scheduler.Scheduler, *jsonstore.Store) {
	t.Helper()
	store, err := jsonstore.Open(t.TempDir())
	require.NoError(t, err)
	st, err := state.Open(t.TempDir(), "default")
	require.NoError(t, err)

	sched := scheduler.New(configForTest(), store, nil, nil, nil, st, nil, t.TempDir())
	return sched, store
}

func TestApplyResumeWithNoPersistedStateErrors(t *testing.T) {
	sched, _ := newTestScheduler(t)
	sched.StartingTaskID = "T-1"

	err := applyResume(sched, true)
	require.ErrorIs(t, err, scheduler.ErrResumeStateMissing)
	require.Equal(t, "T-1", sched.StartingTaskID, "a failed resume leaves StartingTaskID untouched")
}

func TestApplyResumeWithoutResetClearsStartingTaskID(t *testing.T) {
	sched, _ := newTestScheduler(t)
	sched.StartingTaskID = "T-1"
	require.NoError(t, sched.State.SaveState(state.LoopState{LastTaskRef: "T-9"}))

	require.NoError(t, applyResume(sched, false))
	require.Equal(t, "", sched.StartingTaskID)
}

func TestApplyResumeWithResetReturnsOrphanedInProgressTaskToPending(t *testing.T) {
	sched, store := newTestScheduler(t)
	created, err := store.CreateTask(context.Background(), task.NewFields{Title: "orphan"})
	require.NoError(t, err)
	_, err = store.MarkInProgress(context.Background(), created.ID)
	require.NoError(t, err)

	require.NoError(t, sched.State.SaveState(state.LoopState{LastTaskRef: created.ID}))

	require.NoError(t, applyResume(sched, true))

	got, err := store.GetTask(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, got.Status)
}
