package fallback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadimtuhin/loopwork/internal/task"
	"github.com/nadimtuhin/loopwork/internal/store/jsonstore"
)

// unreachablePrimary implements task.Store and reports every write as
// connection-class-failed, for exercising fallthrough to secondary/queue.
// Embedding a nil task.Store means any method this type doesn't override
// would panic if called — none of these tests call the others.
type unreachablePrimary struct {
	task.Store
}

func (unreachablePrimary) CreateTask(ctx context.Context, fields task.NewFields) (*task.Task, error) {
	return nil, task.ErrStoreWriteFailed
}

func (unreachablePrimary) MarkInProgress(ctx context.Context, id string) (*task.Task, error) {
	return nil, task.ErrStoreWriteFailed
}

func TestWriteThroughFallsThroughToSecondary(t *testing.T) {
	secondary, err := jsonstore.Open(t.TempDir())
	require.NoError(t, err)

	s := New(unreachablePrimary{}, secondary, nil)
	created, err := s.CreateTask(context.Background(), task.NewFields{Title: "t"})
	require.NoError(t, err)
	assert.NotNil(t, created)
	assert.True(t, s.OnSecondary())
}

func TestWriteThroughQueuesWhenBothUnreachable(t *testing.T) {
	queue, err := NewOfflineQueue(t.TempDir() + "/queue.jsonl")
	require.NoError(t, err)

	s := New(unreachablePrimary{}, nil, queue)
	_, err = s.CreateTask(context.Background(), task.NewFields{Title: "t"})
	assert.Error(t, err, "both backends unreachable surfaces an error even though the write is queued")

	pending, err := queue.ListQueued()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "createTask", pending[0].Op)
}

func TestDrainReplaysQueuedWrites(t *testing.T) {
	queue, err := NewOfflineQueue(t.TempDir() + "/queue.jsonl")
	require.NoError(t, err)
	primary, err := jsonstore.Open(t.TempDir())
	require.NoError(t, err)

	s := New(unreachablePrimary{}, nil, queue)
	_, err = s.CreateTask(context.Background(), task.NewFields{Title: "queued"})
	require.Error(t, err)

	// Point the queue's replay target at a reachable store by draining
	// through a Store whose primary now accepts writes.
	s2 := New(primary, nil, queue)
	require.NoError(t, s2.Drain(context.Background()))

	tasks, err := primary.ListTasks(context.Background(), task.Filter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "queued", tasks[0].Title)

	remaining, err := queue.ListQueued()
	require.NoError(t, err)
	assert.Empty(t, remaining)

	stats := s2.DrainStats()
	require.Len(t, stats, 1)
	assert.Equal(t, true, stats[0]["success"])
}

func TestClassify(t *testing.T) {
	assert.Equal(t, NonConnection, Classify(task.ErrStoreCorrupt))
	assert.Equal(t, NonConnection, Classify(task.ErrInvalidState))
	assert.Equal(t, Connection, Classify(task.ErrStoreWriteFailed))
	assert.Equal(t, Connection, Classify(task.ErrLockTimeout))
	assert.Equal(t, NonConnection, Classify(nil))
}
