package jsonstore

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/nadimtuhin/loopwork/internal/task"
	"github.com/nadimtuhin/loopwork/pkg/filelock"
)

// DefaultQuarantineThreshold is the failureCount at which markFailed
// transitions a task straight to quarantined instead of failed.
const DefaultQuarantineThreshold = 5

// Store is the canonical JSON-file adapter. All writes go through
// withLock, which enforces the scoped-acquisition guarantee: the lock is
// released on every exit path.
type Store struct {
	dir                 string
	path                string
	lockPath            string
	lockBudget          time.Duration
	quarantineThreshold int
	now                 func() time.Time
}

// Option configures Store at construction.
type Option func(*Store)

// WithLockBudget overrides the default 5s lock-acquisition budget.
func WithLockBudget(d time.Duration) Option {
	return func(s *Store) { s.lockBudget = d }
}

// WithQuarantineThreshold overrides DefaultQuarantineThreshold.
func WithQuarantineThreshold(n int) Option {
	return func(s *Store) { s.quarantineThreshold = n }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open returns a Store rooted at dir, creating an empty store.json there
// if one does not already exist.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:                 dir,
		path:                filepath.Join(dir, "store.json"),
		lockPath:            filepath.Join(dir, "store.lock"),
		lockBudget:          filelock.DefaultBudget,
		quarantineThreshold: DefaultQuarantineThreshold,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := load(s.path); err != nil {
		if errors.Is(err, task.ErrStoreNotFound) {
			if err := save(s.path, &document{Tasks: []*task.Task{}}); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	return s, nil
}

// withLock acquires the store's file lock, loads the document, lets fn
// mutate it, and — if fn reports a change — saves it back before
// releasing the lock. The lock is always released via defer, regardless
// of how fn or save exit.
func (s *Store) withLock(fn func(*document) (changed bool, err error)) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockBudget)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	doc, err := load(s.path)
	if err != nil {
		return err
	}

	changed, err := fn(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return save(s.path, doc)
}

// readOnly loads the document without taking the write lock; reads never
// mutate.
func (s *Store) readOnly() (*document, error) {
	return load(s.path)
}

func (s *Store) touch(t *task.Task) {
	now := s.now()
	if t.Timestamps.CreatedAt == nil {
		t.Timestamps.CreatedAt = &now
	}
	t.Timestamps.UpdatedAt = &now
}

func (s *Store) appendEvent(t *task.Task, typ task.EventType, level task.Level, message string, metadata map[string]any) {
	t.Events = append(t.Events, task.Event{
		TaskID:    t.ID,
		Timestamp: s.now(),
		Type:      typ,
		Level:     level,
		Actor:     task.ActorSystem,
		Message:   message,
		Metadata:  metadata,
	})
}

// --- reads ---

func (s *Store) FindNextTask(ctx context.Context, filter task.Filter) (*task.Task, error) {
	tasks, err := s.ListPendingTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	doc, err := s.readOnly()
	if err != nil {
		return nil, err
	}
	t := doc.findByID(id)
	if t == nil {
		return nil, nil
	}
	return withDescription(s.dir, t.Clone()), nil
}

func (s *Store) ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	doc, err := s.readOnly()
	if err != nil {
		return nil, err
	}
	var out []*task.Task
	for _, t := range doc.Tasks {
		if filter.Match(t) {
			out = append(out, withDescription(s.dir, t.Clone()))
		}
	}
	sortTasks(out)
	return out, nil
}

func (s *Store) ListPendingTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	doc, err := s.readOnly()
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []*task.Task
	for _, t := range doc.Tasks {
		if !filter.Match(t) || !task.Eligible(t, now) {
			continue
		}
		met, err := dependenciesMet(doc, t)
		if err != nil {
			return nil, err
		}
		if !met {
			continue
		}
		out = append(out, withDescription(s.dir, t.Clone()))
	}
	sortTasks(out)
	return out, nil
}

func (s *Store) CountPending(ctx context.Context, filter task.Filter) (int, error) {
	tasks, err := s.ListPendingTasks(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

func sortTasks(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, idi := task.SortKey(tasks[i])
		rj, idj := task.SortKey(tasks[j])
		if ri != rj {
			return ri < rj
		}
		return idi < idj
	})
}

// dependenciesMet reports whether every id in t.DependsOn refers to a task
// that exists and is completed. A dependency on a non-existent id is
// treated as unmet.
func dependenciesMet(doc *document, t *task.Task) (bool, error) {
	for _, depID := range t.DependsOn {
		dep := doc.findByID(depID)
		if dep == nil || dep.Status != task.StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// withDescription overlays a task's sibling Markdown file onto its
// in-document description, applying the `# H1` title override.
func withDescription(dir string, t *task.Task) *task.Task {
	if t == nil {
		return nil
	}
	body, title, err := readMarkdown(dir, t.ID)
	if err != nil || body == "" {
		return t
	}
	t.Description = body
	if title != "" {
		t.Title = title
	}
	return t
}

func (s *Store) Ping(ctx context.Context) task.PingResult {
	start := s.now()
	_, err := s.readOnly()
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return task.PingResult{OK: false, LatencyMS: latency, Error: err.Error()}
	}
	return task.PingResult{OK: true, LatencyMS: latency}
}
