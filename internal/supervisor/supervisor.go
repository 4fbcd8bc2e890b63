// Package supervisor implements the Process Supervisor: a
// thin process manager that detaches a `loopwork run` invocation into the
// background, tracks it with a PID file, and can stop, restart, or report
// on it — grounded on firestige-Otus/internal/daemon/daemon.go's PID-file
// lifecycle, adapted from an in-process daemon to an out-of-process
// supervised child.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Status reports what Status() found about the supervised process.
type Status struct {
	Running bool
	PID     int
	// Orphaned is true when the PID file, read again by ownsPID, no longer
	// names the live PID that Status first read from it. A PID recycled by
	// an unrelated process after a crash that skipped PID-file cleanup is
	// not detected: that process is reported as Running, not Orphaned.
	Orphaned bool
}

// Supervisor manages one namespace's detached `loopwork run` child.
type Supervisor struct {
	PIDFile     string
	ArgvFile    string // persisted restart argv, one arg per line
	StopTimeout time.Duration
}

// New returns a Supervisor rooted at runDir (typically
// `<projectRoot>/.loopwork/run/<namespace>`).
func New(runDir string) (*Supervisor, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "supervisor: mkdir %s", runDir)
	}
	return &Supervisor{
		PIDFile:     filepath.Join(runDir, "supervisor.pid"),
		ArgvFile:    filepath.Join(runDir, "supervisor.argv"),
		StopTimeout: 10 * time.Second,
	}, nil
}

// Start spawns self (os.Args[0]) with args, detached from the current
// terminal via a new session, and records its PID and argv for Restart.
func (s *Supervisor) Start(args []string) (int, error) {
	if pid, ok := s.readRunningPID(); ok {
		return pid, errors.Errorf("supervisor: already running as pid %d", pid)
	}

	self, err := os.Executable()
	if err != nil {
		return 0, errors.Wrap(err, "supervisor: resolve self")
	}

	cmd := exec.Command(self, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, errors.Wrap(err, "supervisor: start")
	}

	pid := cmd.Process.Pid
	if err := s.writePIDFile(pid); err != nil {
		return pid, err
	}
	if err := os.WriteFile(s.ArgvFile, []byte(strings.Join(args, "\n")), 0644); err != nil {
		return pid, errors.Wrap(err, "supervisor: persist restart argv")
	}
	// Detach: the spawned process now owns its own session: reaping it is
	// not this process's responsibility, so Release rather than Wait.
	return pid, cmd.Process.Release()
}

// Stop sends SIGTERM and polls for exit up to StopTimeout, escalating to
// SIGKILL if the process has not exited by then.
func (s *Supervisor) Stop() error {
	pid, ok := s.readRunningPID()
	if !ok {
		return s.removePIDFile()
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return errors.Wrapf(err, "supervisor: SIGTERM pid %d", pid)
	}

	deadline := time.Now().Add(s.StopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return s.removePIDFile()
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return errors.Wrapf(err, "supervisor: SIGKILL pid %d", pid)
	}
	return s.removePIDFile()
}

// Restart stops the current process (if any) and starts a new one with
// the argv persisted by the last Start call.
func (s *Supervisor) Restart() (int, error) {
	if err := s.Stop(); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(s.ArgvFile)
	if err != nil {
		return 0, errors.Wrap(ErrNoSavedArgv, "supervisor: restart")
	}
	args := strings.Split(string(data), "\n")
	return s.Start(args)
}

// Status reports whether the supervised process is alive, and whether
// the PID file's process matches what this Supervisor last spawned.
func (s *Supervisor) Status() Status {
	pid, ok := s.readPID()
	if !ok {
		return Status{}
	}
	alive := processAlive(pid)
	if !alive {
		return Status{}
	}
	return Status{Running: true, PID: pid, Orphaned: !s.ownsPID(pid)}
}

// ErrNoSavedArgv is returned by Restart when no prior Start has persisted
// an argv file to restart from.
var ErrNoSavedArgv = errors.New("supervisor: no saved restart argv")

func (s *Supervisor) writePIDFile(pid int) error {
	data := []byte(strconv.Itoa(pid) + "\n")
	if err := os.WriteFile(s.PIDFile, data, 0644); err != nil {
		return errors.Wrapf(err, "supervisor: write pid file %s", s.PIDFile)
	}
	return nil
}

func (s *Supervisor) removePIDFile() error {
	if err := os.Remove(s.PIDFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "supervisor: remove pid file %s", s.PIDFile)
	}
	return nil
}

func (s *Supervisor) readPID() (int, bool) {
	data, err := os.ReadFile(s.PIDFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func (s *Supervisor) readRunningPID() (int, bool) {
	pid, ok := s.readPID()
	if !ok {
		return 0, false
	}
	if !processAlive(pid) {
		return 0, false
	}
	return pid, true
}

// ownsPID reports whether the PID file currently records pid. No
// start-time snapshot is kept at Start time, so a PID whose process
// exited and was replaced before Stop/Status ran cannot be told apart
// from the process this Supervisor spawned.
func (s *Supervisor) ownsPID(pid int) bool {
	recorded, ok := s.readPID()
	return ok && recorded == pid
}

// processAlive reports whether pid is a live process, using signal 0
// to probe without actually signaling it.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, unix.ESRCH)
}

// FindOrphans scans /proc for processes whose command line invokes
// loopwork but whose PID is not named by any of the given known PID
// files — orphans left behind by a supervisor crash.
func FindOrphans(knownPIDFiles []string) ([]int, error) {
	known := make(map[int]bool, len(knownPIDFiles))
	for _, f := range knownPIDFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			known[pid] = true
		}
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("supervisor: read /proc: %w", err)
	}

	var orphans []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if known[pid] {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", e.Name(), "cmdline"))
		if err != nil {
			continue
		}
		if strings.Contains(string(comm), "loopwork") {
			orphans = append(orphans, pid)
		}
	}
	return orphans, nil
}
