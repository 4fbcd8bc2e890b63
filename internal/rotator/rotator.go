// Package rotator implements the Model Rotator: two ordered
// pools of (tool, model) entries with round-robin selection and an
// idempotent, per-iteration-resettable fallback switch.
package rotator

import (
	"sync"

	"go.uber.org/atomic"
)

// Entry is one (tool, model) pair the Executor can dispatch to.
type Entry struct {
	Name  string
	Tool  string
	Model string
}

// Rotator holds the primary (exec) and fallback pools and their
// round-robin cursors. Safe for concurrent use, though the Scheduler only
// ever drives it from its single control-loop goroutine; the locking here
// exists so a read from another goroutine never races the loop.
type Rotator struct {
	mu          sync.Mutex
	exec        []Entry
	fallback    []Entry
	ei          int
	fi          int
	useFallback *atomic.Bool
}

// New returns a Rotator over the given primary and fallback pools. A
// Rotator with an empty primary pool is invalid; callers should treat that
// as NoCLIFound at construction.
func New(exec, fallback []Entry) *Rotator {
	return &Rotator{
		exec:        exec,
		fallback:    fallback,
		useFallback: atomic.NewBool(false),
	}
}

// Next returns the next viable entry, advancing the active pool's
// round-robin cursor. It returns false if the active pool is empty.
func (r *Rotator) Next() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, idx := r.activePool()
	if len(*pool) == 0 {
		return Entry{}, false
	}

	entry := (*pool)[*idx%len(*pool)]
	*idx++
	return entry, true
}

// Peek reports the entry Next would return without advancing the
// cursor, so a caller can key per-(tool,model) state — a circuit
// breaker, a log line — on the pool member about to be dispatched to.
func (r *Rotator) Peek() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, idx := r.activePool()
	if len(*pool) == 0 {
		return Entry{}, false
	}
	return (*pool)[*idx%len(*pool)], true
}

// activePool returns the currently active pool and its cursor. Callers
// must hold r.mu.
func (r *Rotator) activePool() (*[]Entry, *int) {
	if r.useFallback.Load() {
		return &r.fallback, &r.fi
	}
	return &r.exec, &r.ei
}

// SwitchToFallback engages the fallback pool. Idempotent: calling it
// repeatedly has no additional effect.
func (r *Rotator) SwitchToFallback() {
	r.useFallback.CompareAndSwap(false, true)
}

// UsingFallback reports whether the fallback pool is currently active.
func (r *Rotator) UsingFallback() bool {
	return r.useFallback.Load()
}

// ResetFallback returns selection to the primary pool. Called at the start
// of every Scheduler iteration so each task gets a fresh primary attempt.
func (r *Rotator) ResetFallback() {
	r.useFallback.Store(false)
}

// PrimaryLen and FallbackLen report pool sizes, used to compute the
// Executor's maximum total attempts.
func (r *Rotator) PrimaryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exec)
}

func (r *Rotator) FallbackLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fallback)
}
