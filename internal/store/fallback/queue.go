package fallback

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nadimtuhin/loopwork/internal/task"
)

// QueuedWrite is one pending write recorded while both the primary and
// secondary backend were unreachable.
type QueuedWrite struct {
	Op         string          `json:"op"`
	TaskID     string          `json:"taskID"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// OfflineQueue persists QueuedWrites as JSON Lines, one record per line.
// Enqueue appends to the file in place, so a crash mid-append can leave a
// torn last line; Drain rewrites the remaining records with the
// write-temp-then-rename discipline of
// reliability.CheckpointManager.SaveCheckpoint.
type OfflineQueue struct {
	path string
	mu   sync.Mutex
}

// NewOfflineQueue returns a queue backed by path, creating its parent
// directory if needed.
func NewOfflineQueue(path string) (*OfflineQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(task.ErrStoreWriteFailed, "fallback: mkdir %s: %v", filepath.Dir(path), err)
	}
	return &OfflineQueue{path: path}, nil
}

// Enqueue appends a new pending write. args is marshalled as-is.
func (q *OfflineQueue) Enqueue(op, taskID string, args any, now time.Time) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: marshal args for %s: %v", op, err)
	}
	rec := QueuedWrite{Op: op, TaskID: taskID, Args: raw, EnqueuedAt: now}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: open %s: %v", q.path, err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: marshal record: %v", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: append %s: %v", q.path, err)
	}
	return nil
}

// ListQueued returns every pending write in enqueue order.
func (q *OfflineQueue) ListQueued() ([]QueuedWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.readAll()
}

func (q *OfflineQueue) readAll() ([]QueuedWrite, error) {
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(task.ErrStoreWriteFailed, "fallback: read %s: %v", q.path, err)
	}
	defer f.Close()

	var out []QueuedWrite
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec QueuedWrite
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errors.Wrapf(task.ErrStoreCorrupt, "fallback: parse %s: %v", q.path, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(task.ErrStoreWriteFailed, "fallback: scan %s: %v", q.path, err)
	}
	return out, nil
}

// Drain replays every queued write through apply, in order, stopping at the
// first failure. Successfully applied records are removed from the queue by
// atomically rewriting it with only the remainder (write-temp-then-rename),
// so a crash mid-drain leaves either the pre-drain or post-drain queue, never
// a partial one.
func (q *OfflineQueue) Drain(apply func(QueuedWrite) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.readAll()
	if err != nil {
		return err
	}

	remaining := records
	for i, rec := range records {
		if err := apply(rec); err != nil {
			remaining = records[i:]
			return q.rewrite(remaining, err)
		}
		remaining = records[i+1:]
	}
	return q.rewrite(remaining, nil)
}

func (q *OfflineQueue) rewrite(remaining []QueuedWrite, applyErr error) error {
	tmp := q.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: create %s: %v", tmp, err)
	}
	for _, rec := range remaining {
		line, merr := json.Marshal(rec)
		if merr != nil {
			f.Close()
			return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: marshal record: %v", merr)
		}
		if _, werr := f.Write(append(line, '\n')); werr != nil {
			f.Close()
			return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: write %s: %v", tmp, werr)
		}
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: close %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "fallback: rename %s: %v", tmp, err)
	}
	return applyErr
}
