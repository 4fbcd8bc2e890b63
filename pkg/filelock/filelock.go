// Package filelock implements the advisory, PID-stamped lock file used by
// both the JSON task store (internal/store/jsonstore) and the namespace
// state store (internal/state) to serialize concurrent writers.
//
// The lock is a plain file holding the holder's PID. Acquisition polls at
// a fixed interval until the file can be created exclusively, the existing
// lock is reclaimed as stale, or the budget is exhausted. Release is
// always expressed as a scoped guard so a deferred Unlock runs on every
// exit path, including panics and signal-induced termination.
package filelock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/nadimtuhin/loopwork/internal/task"
)

// syscallSignal0 is signal 0: sending it never actually signals the
// process, it only probes whether the PID still belongs to a live,
// permitted-to-signal process.
const syscallSignal0 = syscall.Signal(0)

// StaleAge is how old an unheld lock file must be before it is reclaimed.
const StaleAge = 30 * time.Second

// PollInterval is how often Acquire retries while the lock is held.
const PollInterval = 100 * time.Millisecond

// DefaultBudget is the total time Acquire will retry before giving up.
const DefaultBudget = 5 * time.Second

// IsAlive reports whether pid is likely still a live process, by sending
// it signal 0. Any error from that probe (no such process, a process this
// user may not signal, or a platform without signal-0 support) reports
// false, so stale-lock reclaim treats such a holder as gone.
var IsAlive = func(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 is the portable way
	// to probe liveness without actually signaling the process.
	err = proc.Signal(syscallSignal0)
	return err == nil
}

// Lock is a scoped handle over one lock file. Unlock is idempotent and
// safe to call multiple times (e.g. once via defer and once explicitly on
// an error path).
type Lock struct {
	path     string
	released bool
}

// Path is the lock file this handle guards.
func (l *Lock) Path() string { return l.path }

// Unlock releases the lock if this handle still holds it. It never
// returns an error: a best-effort remove is always correct here — if the
// file is already gone (reclaimed by another process that judged us
// stale), there is nothing left to release.
func (l *Lock) Unlock() {
	if l == nil || l.released {
		return
	}
	l.released = true
	_ = os.Remove(l.path)
}

// Acquire creates path exclusively, reclaiming it first if it is stale
// (age > StaleAge or the recorded holder PID is not alive). It polls every
// PollInterval until budget elapses, at which point it returns
// task.ErrLockTimeout.
func Acquire(path string, budget time.Duration) (*Lock, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	deadline := time.Now().Add(budget)
	pid := os.Getpid()

	for {
		if ok, err := tryCreate(path, pid); err != nil {
			return nil, errors.Wrapf(err, "filelock: create %s", path)
		} else if ok {
			return &Lock{path: path}, nil
		}

		reclaimStale(path)

		if time.Now().After(deadline) {
			return nil, errors.Wrapf(task.ErrLockTimeout, "filelock: %s held after %s", path, budget)
		}
		time.Sleep(PollInterval)
	}
}

// tryCreate attempts an exclusive create-and-write of the lock file. It
// returns (true, nil) on success, (false, nil) if the file already exists,
// and (false, err) for any other I/O failure.
func tryCreate(path string, pid int) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n%d\n", pid, time.Now().Unix()); err != nil {
		return false, err
	}
	return true, nil
}

// reclaimStale removes path if its contents show it is abandoned: either
// older than StaleAge or its recorded holder is no longer alive.
func reclaimStale(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	holderPID, _ := readHolder(path)
	stale := time.Since(info.ModTime()) > StaleAge
	if !stale && holderPID > 0 {
		stale = !IsAlive(holderPID)
	}
	if stale {
		_ = os.Remove(path)
	}
}

// readHolder parses the PID recorded in a lock file.
func readHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	line := strings.SplitN(string(data), "\n", 2)[0]
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, err
	}
	return pid, nil
}
