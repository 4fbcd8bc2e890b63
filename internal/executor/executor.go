package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/nadimtuhin/loopwork/internal/reliability"
	"github.com/nadimtuhin/loopwork/internal/rotator"
)

const (
	tailSize            = 2 * 1024
	defaultGracePeriod  = 5 * time.Second
	rateLimitBackoff    = 30 * time.Second
)

// Executor drives one AI CLI subprocess invocation at a time on behalf of
// the Scheduler. It owns the currently-running subprocess
// exclusively; the Scheduler only ever reaches it through Run and
// KillCurrent.
type Executor struct {
	tools        map[string]ToolSpec
	gracePeriod  time.Duration
	rateLimiter  *rate.Limiter

	mu      sync.Mutex
	current *exec.Cmd
}

// New discovers which of specs are installed and returns an Executor over
// them. Construction fails with ErrNoCLIFound if none resolve.
func New(specs []ToolSpec) (*Executor, error) {
	discovered := Discover(specs)
	if len(discovered) == 0 {
		return nil, errors.Wrap(ErrNoCLIFound, "executor: checked PATH and well-known install directories")
	}
	tools := make(map[string]ToolSpec, len(discovered))
	for _, s := range discovered {
		tools[s.Name] = s
	}
	return &Executor{
		tools:       tools,
		gracePeriod: defaultGracePeriod,
		// One token every 30s paces the rate-limited backoff through a
		// limiter instead of a bare time.Sleep, so concurrent callers
		// queue instead of stampeding.
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitBackoff), 1),
	}, nil
}

// WaitRateLimitBackoff blocks until the next rate-limit retry slot, then
// an additional exponentially-growing delay keyed on attempt (the count of
// rate-limit markers already seen this dispatch), so a pool that keeps
// reporting rate-limited backs off harder on each consecutive hit instead
// of retrying at the limiter's fixed cadence.
func (e *Executor) WaitRateLimitBackoff(ctx context.Context, attempt int) error {
	if err := e.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	extra := reliability.ExponentialBackoff(attempt, time.Second, rateLimitBackoff)
	select {
	case <-time.After(extra):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run spawns the subprocess named by entry, tees its combined output to
// req.OutputFile and to the Executor's own output, enforces req.Timeout
// with a polite SIGTERM followed by a SIGKILL after the grace period, and
// returns the classified Result.
func (e *Executor) Run(ctx context.Context, entry rotator.Entry, req Request) (Result, error) {
	spec, ok := e.tools[entry.Tool]
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownTool, "executor: %s", entry.Tool)
	}

	outFile, err := os.OpenFile(req.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return Result{}, errors.Wrapf(err, "executor: open output file %s", req.OutputFile)
	}
	defer outFile.Close()

	tail := newTailBuffer(tailSize)
	mw := io.MultiWriter(outFile, os.Stdout, tail)

	args, stdin, env := buildInvocation(spec, entry.Model, req.Prompt)

	cmd := exec.CommandContext(ctx, spec.Binary, args...)
	cmd.Env = env
	cmd.Stdout = mw
	cmd.Stderr = mw
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, errors.Wrapf(err, "executor: start %s", spec.Binary)
	}

	e.mu.Lock()
	e.current = cmd
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timedOut := false
	select {
	case <-done:
	case <-time.After(req.Timeout):
		timedOut = true
		terminate(cmd, done, e.gracePeriod)
	}

	exitCode := exitCodeOf(cmd)
	outcome := classify(exitCode, timedOut, tail.String())
	return Result{
		ExitCode: exitCode,
		TimedOut: timedOut,
		Outcome:  outcome,
		Tail:     tail.String(),
	}, nil
}

// KillCurrent terminates whatever subprocess is presently running, if any.
// It is a no-op when nothing is running and safe to call concurrently with
// Run — wired into the Scheduler's signal handler for Ctrl+C-equivalent
// cancellation.
func (e *Executor) KillCurrent() {
	e.mu.Lock()
	cmd := e.current
	e.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
}

// terminate sends a polite SIGTERM and escalates to SIGKILL if the process
// has not exited within grace.
func terminate(cmd *exec.Cmd, done <-chan error, grace time.Duration) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-done:
	case <-time.After(grace):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}
}

func exitCodeOf(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// buildInvocation constructs the argument vector, optional stdin payload,
// and environment for one tool variant.
func buildInvocation(spec ToolSpec, model, prompt string) (args []string, stdin string, env []string) {
	env = os.Environ()
	switch spec.Variant {
	case VariantStdin:
		args = []string{"--model", model}
		stdin = prompt
	default: // VariantPositionalArg
		args = []string{"--model", model, prompt}
		if spec.PermissionEnvVar != "" {
			env = append(env, fmt.Sprintf("%s=1", spec.PermissionEnvVar))
		}
	}
	return args, stdin, env
}
