package jsonstore

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/nadimtuhin/loopwork/internal/task"
)

// noopError lets a mutator short-circuit mutateAllowNoop without treating
// the operation as a failure: the store returns the unchanged task, no
// event is appended, and nothing is written back to disk.
type noopError struct{}

func (noopError) Error() string { return "noop" }

var errNoop error = noopError{}

// mutate runs fn against the task with id inside withLock and always
// persists the result; used by transitions that cannot legitimately be a
// no-op.
func (s *Store) mutate(id string, fn func(doc *document, t *task.Task) error) (*task.Task, error) {
	var result *task.Task
	err := s.withLock(func(doc *document) (bool, error) {
		t := doc.findByID(id)
		if t == nil {
			return false, errors.Wrapf(task.ErrTaskNotFound, "jsonstore: %s", id)
		}
		if err := fn(doc, t); err != nil {
			return false, err
		}
		result = t.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return withDescription(s.dir, result), nil
}

// mutateAllowNoop is like mutate, but fn may return errNoop to signal
// "leave the document exactly as-is, return the current task, no error".
func (s *Store) mutateAllowNoop(id string, fn func(doc *document, t *task.Task) error) (*task.Task, error) {
	var result *task.Task
	err := s.withLock(func(doc *document) (bool, error) {
		t := doc.findByID(id)
		if t == nil {
			return false, errors.Wrapf(task.ErrTaskNotFound, "jsonstore: %s", id)
		}
		if err := fn(doc, t); err != nil {
			if _, ok := err.(noopError); ok {
				result = t.Clone()
				return false, nil
			}
			return false, err
		}
		result = t.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return withDescription(s.dir, result), nil
}

func (s *Store) MarkInProgress(ctx context.Context, id string) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		if t.Status != task.StatusPending {
			return errors.Wrapf(task.ErrInvalidState, "jsonstore: %s is %s, want pending", id, t.Status)
		}
		t.Status = task.StatusInProgress
		s.touch(t)
		s.appendEvent(t, task.EventStarted, task.LevelInfo, "", nil)
		return nil
	})
}

func (s *Store) MarkCompleted(ctx context.Context, id string, comment string) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		if t.Status != task.StatusInProgress {
			return errors.Wrapf(task.ErrInvalidState, "jsonstore: %s is %s, want in-progress", id, t.Status)
		}
		t.Status = task.StatusCompleted
		now := s.now()
		t.Timestamps.CompletedAt = &now
		s.touch(t)
		s.appendEvent(t, task.EventCompleted, task.LevelInfo, comment, nil)
		return nil
	})
}

// MarkFailed increments failureCount and transitions in-progress ->
// failed, or in-progress -> quarantined once failureCount reaches the
// store's quarantine threshold. Called on an already quarantined task it
// performs a manual clear: quarantined -> failed, without incrementing
// failureCount again or risking re-quarantine on the same call.
func (s *Store) MarkFailed(ctx context.Context, id string, cause error) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		now := s.now()
		s.touch(t)

		if t.Status == task.StatusQuarantined {
			t.Status = task.StatusFailed
			t.Timestamps.FailedAt = &now
			if cause != nil {
				t.LastError = cause.Error()
			}
			s.appendEvent(t, task.EventFailed, task.LevelError, t.LastError, nil)
			return nil
		}

		if t.Status != task.StatusInProgress {
			return errors.Wrapf(task.ErrInvalidState, "jsonstore: %s is %s, want in-progress", id, t.Status)
		}

		t.FailureCount++
		if cause != nil {
			t.LastError = cause.Error()
		}

		if t.FailureCount >= s.quarantineThreshold {
			t.Status = task.StatusQuarantined
			t.Timestamps.QuarantinedAt = &now
			s.appendEvent(t, task.EventQuarantined, task.LevelError, t.LastError, nil)
			return nil
		}

		t.Status = task.StatusFailed
		t.Timestamps.FailedAt = &now
		s.appendEvent(t, task.EventFailed, task.LevelError, t.LastError, nil)
		return nil
	})
}

func (s *Store) MarkQuarantined(ctx context.Context, id string, reason string) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		if t.Status != task.StatusInProgress && t.Status != task.StatusFailed {
			return errors.Wrapf(task.ErrInvalidState, "jsonstore: %s is %s, cannot quarantine", id, t.Status)
		}
		t.Status = task.StatusQuarantined
		now := s.now()
		t.Timestamps.QuarantinedAt = &now
		s.touch(t)
		s.appendEvent(t, task.EventQuarantined, task.LevelError, reason, nil)
		return nil
	})
}

// ResetToPending clears transient error context without touching
// failureCount or history. On an already-pending task it is a no-op.
func (s *Store) ResetToPending(ctx context.Context, id string) (*task.Task, error) {
	return s.mutateAllowNoop(id, func(doc *document, t *task.Task) error {
		if t.Status == task.StatusPending {
			return errNoop
		}
		if t.Status != task.StatusFailed && t.Status != task.StatusQuarantined && t.Status != task.StatusInProgress {
			return errors.Wrapf(task.ErrInvalidState, "jsonstore: %s is %s, cannot reset", id, t.Status)
		}
		prev := t.Status
		t.Status = task.StatusPending
		t.Timestamps.QuarantinedAt = nil
		t.Timestamps.CompletedAt = nil
		t.LastError = ""
		s.touch(t)
		s.appendEvent(t, task.EventReset, task.LevelInfo, string(prev), nil)
		return nil
	})
}

// RescheduleCompleted only applies to a completed task: it transitions to
// pending, clears completedAt, and sets scheduledFor to when (nil clears
// it for immediate eligibility).
func (s *Store) RescheduleCompleted(ctx context.Context, id string, when *time.Time) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		if t.Status != task.StatusCompleted {
			return errors.Wrapf(task.ErrInvalidState, "jsonstore: %s is %s, want completed", id, t.Status)
		}
		t.Status = task.StatusPending
		t.Timestamps.CompletedAt = nil
		t.ScheduledFor = when
		s.touch(t)
		s.appendEvent(t, task.EventReset, task.LevelInfo, "rescheduled", nil)
		return nil
	})
}

func (s *Store) AddComment(ctx context.Context, id string, text string) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		s.touch(t)
		s.appendEvent(t, task.EventComment, task.LevelInfo, text, nil)
		return nil
	})
}

func (s *Store) SetPriority(ctx context.Context, id string, priority task.Priority) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		t.Priority = priority
		s.touch(t)
		return nil
	})
}

func (s *Store) CreateTask(ctx context.Context, fields task.NewFields) (*task.Task, error) {
	var result *task.Task
	err := s.withLock(func(doc *document) (bool, error) {
		id := nextID(doc, fields.Feature)
		t := newTaskFromFields(id, fields, s.now())
		doc.Tasks = append(doc.Tasks, t)
		result = t.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if err := writeMarkdown(s.dir, result.ID, fields.Description); err != nil {
		return nil, err
	}
	return withDescription(s.dir, result), nil
}

func (s *Store) CreateSubTask(ctx context.Context, parentID string, fields task.NewFields) (*task.Task, error) {
	var result *task.Task
	err := s.withLock(func(doc *document) (bool, error) {
		parent := doc.findByID(parentID)
		if parent == nil {
			return false, errors.Wrapf(task.ErrParentNotFound, "jsonstore: %s", parentID)
		}
		id := nextSubID(doc, parentID)
		t := newTaskFromFields(id, fields, s.now())
		t.ParentID = parentID
		if t.Feature == "" {
			t.Feature = parent.Feature
		}
		doc.Tasks = append(doc.Tasks, t)
		result = t.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if err := writeMarkdown(s.dir, result.ID, fields.Description); err != nil {
		return nil, err
	}
	return withDescription(s.dir, result), nil
}

func newTaskFromFields(id string, fields task.NewFields, now time.Time) *task.Task {
	priority := fields.Priority
	if priority == "" {
		priority = task.DefaultPriority
	}
	return &task.Task{
		ID:           id,
		Title:        fields.Title,
		Description:  fields.Description,
		Status:       task.StatusPending,
		Priority:     priority,
		Feature:      fields.Feature,
		DependsOn:    append([]string(nil), fields.DependsOn...),
		ScheduledFor: fields.ScheduledFor,
		Labels:       append([]string(nil), fields.Labels...),
		Metadata:     fields.Metadata,
		Timestamps:   task.Timestamps{CreatedAt: &now, UpdatedAt: &now},
	}
}

func (s *Store) AddDependency(ctx context.Context, id string, dependsOnID string) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		if doc.findByID(dependsOnID) == nil {
			return errors.Wrapf(task.ErrTaskNotFound, "jsonstore: dependency %s", dependsOnID)
		}
		for _, d := range t.DependsOn {
			if d == dependsOnID {
				return nil
			}
		}
		t.DependsOn = append(t.DependsOn, dependsOnID)
		s.touch(t)
		return nil
	})
}

func (s *Store) RemoveDependency(ctx context.Context, id string, dependsOnID string) (*task.Task, error) {
	return s.mutate(id, func(doc *document, t *task.Task) error {
		out := t.DependsOn[:0]
		for _, d := range t.DependsOn {
			if d != dependsOnID {
				out = append(out, d)
			}
		}
		t.DependsOn = out
		s.touch(t)
		return nil
	})
}

func (s *Store) GetSubTasks(ctx context.Context, id string) ([]*task.Task, error) {
	return s.ListTasks(ctx, task.Filter{ParentID: id})
}

func (s *Store) GetDependencies(ctx context.Context, id string) ([]*task.Task, error) {
	doc, err := s.readOnly()
	if err != nil {
		return nil, err
	}
	t := doc.findByID(id)
	if t == nil {
		return nil, errors.Wrapf(task.ErrTaskNotFound, "jsonstore: %s", id)
	}
	var out []*task.Task
	for _, depID := range t.DependsOn {
		if dep := doc.findByID(depID); dep != nil {
			out = append(out, withDescription(s.dir, dep.Clone()))
		}
	}
	return out, nil
}

func (s *Store) GetDependents(ctx context.Context, id string) ([]*task.Task, error) {
	doc, err := s.readOnly()
	if err != nil {
		return nil, err
	}
	var out []*task.Task
	for _, t := range doc.Tasks {
		for _, dep := range t.DependsOn {
			if dep == id {
				out = append(out, withDescription(s.dir, t.Clone()))
				break
			}
		}
	}
	return out, nil
}

func (s *Store) AreDependenciesMet(ctx context.Context, id string) (bool, error) {
	doc, err := s.readOnly()
	if err != nil {
		return false, err
	}
	t := doc.findByID(id)
	if t == nil {
		return false, errors.Wrapf(task.ErrTaskNotFound, "jsonstore: %s", id)
	}
	return dependenciesMet(doc, t)
}
