// Package state implements the namespace-scoped loop state store: one file per namespace holding the resumable state of a single
// Scheduler run, guarded by the same file-lock discipline as the task
// store.
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nadimtuhin/loopwork/internal/task"
	"github.com/nadimtuhin/loopwork/pkg/filelock"
)

// LoopState is the resumable snapshot of one namespace's in-flight run.
type LoopState struct {
	SessionID     string    `json:"sessionId"`
	StartedAt     time.Time `json:"startedAt"`
	LastTaskRef   string    `json:"lastTaskRef,omitempty"`
	LastIteration int       `json:"lastIteration"`
	LastOutputDir string    `json:"lastOutputDir,omitempty"`
	LockHolderPID int       `json:"lockHolderPid"`
}

// Store owns the lock and resume state of one namespace. Only one Scheduler may hold a namespace's lock at a time.
type Store struct {
	path       string
	lockPath   string
	lockBudget time.Duration
	lock       *filelock.Lock
}

// Open returns a Store for namespace rooted at stateDir (typically
// `<projectRoot>/.loopwork/state`)
// `state/<namespace>.json` / `state/<namespace>.lock` layout.
func Open(stateDir, namespace string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, errors.Wrapf(task.ErrStoreWriteFailed, "state: mkdir %s: %v", stateDir, err)
	}
	return &Store{
		path:       filepath.Join(stateDir, namespace+".json"),
		lockPath:   filepath.Join(stateDir, namespace+".lock"),
		lockBudget: filelock.DefaultBudget,
	}, nil
}

// AcquireLock takes the namespace's exclusive lock. Only one Scheduler may
// run per namespace at a time; a second concurrent `run`
// against the same namespace fails with task.ErrLockTimeout.
func (s *Store) AcquireLock(ctx context.Context) error {
	lock, err := filelock.Acquire(s.lockPath, s.lockBudget)
	if err != nil {
		return err
	}
	s.lock = lock
	return nil
}

// ReleaseLock releases the namespace lock if held. Idempotent: safe to
// call on every exit path.
func (s *Store) ReleaseLock() error {
	if s.lock == nil {
		return nil
	}
	s.lock.Unlock()
	s.lock = nil
	return nil
}

// SaveState persists st, creating a new sessionId if st.SessionID is empty.
func (s *Store) SaveState(st LoopState) error {
	if st.SessionID == "" {
		st.SessionID = uuid.NewString()
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "state: marshal %s: %v", s.path, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "state: write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "state: rename %s: %v", tmp, err)
	}
	return nil
}

// LoadState returns the persisted state, or (nil, nil) if none exists —
// `loadState() -> state | none`.
func (s *Store) LoadState() (*LoopState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(task.ErrStoreWriteFailed, "state: read %s: %v", s.path, err)
	}
	var st LoopState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrapf(task.ErrStoreCorrupt, "state: parse %s: %v", s.path, err)
	}
	return &st, nil
}

// ClearState removes the persisted state file. Called when the backlog is
// exhausted.
func (s *Store) ClearState() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(task.ErrStoreWriteFailed, "state: remove %s: %v", s.path, err)
	}
	return nil
}
