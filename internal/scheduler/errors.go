package scheduler

import "errors"

// Scheduler-level termination outcomes. BacklogEmpty is the normal
// termination case, not a failure.
var (
	ErrBacklogEmpty       = errors.New("scheduler: backlog empty")
	ErrCircuitOpen        = errors.New("scheduler: circuit open")
	ErrDependencyUnmet    = errors.New("scheduler: dependency unmet")
	ErrResumeStateMissing = errors.New("scheduler: resume state missing")
)
