package task

import (
	"context"
	"time"
)

// Filter narrows findNextTask/listTasks/listPendingTasks/countPending to a
// subset of the backlog.
type Filter struct {
	Feature     string
	Priority    Priority
	ParentID    string
	TopLevelOnly bool
}

// Match reports whether t satisfies every non-zero field of f. It does not
// evaluate eligibility (status/dependencies/scheduling) — callers combine it
// with Store-level eligibility checks.
func (f Filter) Match(t *Task) bool {
	if f.Feature != "" && t.Feature != f.Feature {
		return false
	}
	if f.Priority != "" && t.NormalizedPriority() != f.Priority {
		return false
	}
	if f.ParentID != "" && t.ParentID != f.ParentID {
		return false
	}
	if f.TopLevelOnly && t.ParentID != "" {
		return false
	}
	return true
}

// PingResult reports adapter reachability without mutating anything.
type PingResult struct {
	OK        bool
	LatencyMS int64
	Error     string
}

// NewFields carries the caller-supplied fields of createTask/createSubTask;
// Status, timestamps, and events are always assigned by the Store.
type NewFields struct {
	Title        string
	Description  string
	Priority     Priority
	Feature      string
	DependsOn    []string
	ScheduledFor *time.Time
	Labels       []string
	Metadata     map[string]any
}

// Store is the canonical task-store contract. JsonTaskAdapter, a future
// GitHubTaskAdapter, and FallbackTaskBackend are its variants.
// Every write either fully applies or leaves the store unchanged; reads
// never mutate.
type Store interface {
	FindNextTask(ctx context.Context, filter Filter) (*Task, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, filter Filter) ([]*Task, error)
	ListPendingTasks(ctx context.Context, filter Filter) ([]*Task, error)
	CountPending(ctx context.Context, filter Filter) (int, error)

	MarkInProgress(ctx context.Context, id string) (*Task, error)
	MarkCompleted(ctx context.Context, id string, comment string) (*Task, error)
	MarkFailed(ctx context.Context, id string, cause error) (*Task, error)
	MarkQuarantined(ctx context.Context, id string, reason string) (*Task, error)
	ResetToPending(ctx context.Context, id string) (*Task, error)
	RescheduleCompleted(ctx context.Context, id string, when *time.Time) (*Task, error)

	AddComment(ctx context.Context, id string, text string) (*Task, error)
	SetPriority(ctx context.Context, id string, priority Priority) (*Task, error)
	CreateTask(ctx context.Context, fields NewFields) (*Task, error)
	CreateSubTask(ctx context.Context, parentID string, fields NewFields) (*Task, error)
	AddDependency(ctx context.Context, id string, dependsOnID string) (*Task, error)
	RemoveDependency(ctx context.Context, id string, dependsOnID string) (*Task, error)
	GetSubTasks(ctx context.Context, id string) ([]*Task, error)
	GetDependencies(ctx context.Context, id string) ([]*Task, error)
	GetDependents(ctx context.Context, id string) ([]*Task, error)
	AreDependenciesMet(ctx context.Context, id string) (bool, error)

	Ping(ctx context.Context) PingResult
}

// Eligible reports whether t can be dispatched at `now`: pending status and
// not scheduled in the future. Dependency satisfaction is checked
// separately (it requires store access) via Store.AreDependenciesMet.
func Eligible(t *Task, now time.Time) bool {
	return t.Status == StatusPending && t.IsScheduledEligible(now)
}

// SortKey orders tasks the way findNextTask/listTasks must: priority bucket
// first (high, medium, low), then ascending id.
func SortKey(t *Task) (int, string) {
	return t.NormalizedPriority().Rank(), t.ID
}
