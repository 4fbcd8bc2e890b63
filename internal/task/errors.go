package task

import "errors"

// Store error taxonomy. Callers compare with errors.Is; adapters wrap
// these with github.com/pkg/errors for added context as they cross
// layers.
var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrStoreNotFound   = errors.New("store not found")
	ErrStoreCorrupt    = errors.New("store corrupt")
	ErrStoreWriteFailed = errors.New("store write failed")
	ErrLockTimeout     = errors.New("lock acquisition timed out")
	ErrParentNotFound  = errors.New("parent task not found")
	ErrDependencyUnmet = errors.New("dependency unmet")
)
