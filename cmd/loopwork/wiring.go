package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/nadimtuhin/loopwork/internal/config"
	"github.com/nadimtuhin/loopwork/internal/executor"
	"github.com/nadimtuhin/loopwork/internal/logging"
	"github.com/nadimtuhin/loopwork/internal/plugin"
	"github.com/nadimtuhin/loopwork/internal/reliability"
	"github.com/nadimtuhin/loopwork/internal/rotator"
	"github.com/nadimtuhin/loopwork/internal/scheduler"
	"github.com/nadimtuhin/loopwork/internal/state"
	"github.com/nadimtuhin/loopwork/internal/store/fallback"
	"github.com/nadimtuhin/loopwork/internal/store/jsonstore"
	"github.com/nadimtuhin/loopwork/internal/task"
)

// loadConfig layers CLI flags (kebab-case, bound in root.go) over
// config.Load's file+env result (camelCase mapstructure tags) — the two
// key conventions don't line up for a blanket viper.Unmarshal, so each
// flag the user actually set is applied explicitly instead.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetString("project-root"))
	if err != nil {
		return cfg, err
	}

	applyFlag := func(name string, set func()) {
		if viper.IsSet(name) {
			set()
		}
	}
	applyFlag("backend", func() { cfg.Backend = viper.GetString("backend") })
	applyFlag("namespace", func() { cfg.Namespace = viper.GetString("namespace") })
	applyFlag("feature", func() { cfg.Feature = viper.GetString("feature") })
	applyFlag("max-iterations", func() { cfg.MaxIterations = viper.GetInt("max-iterations") })
	applyFlag("timeout", func() { cfg.TimeoutSeconds = viper.GetInt("timeout") })
	applyFlag("max-retries", func() { cfg.MaxRetries = viper.GetInt("max-retries") })
	applyFlag("circuit-breaker-threshold", func() { cfg.CircuitBreakerThreshold = viper.GetInt("circuit-breaker-threshold") })
	applyFlag("retry-delay", func() { cfg.RetryDelayMS = viper.GetInt("retry-delay") })
	applyFlag("task-delay", func() { cfg.TaskDelayMS = viper.GetInt("task-delay") })
	applyFlag("dry-run", func() { cfg.DryRun = viper.GetBool("dry-run") })
	applyFlag("auto-confirm", func() { cfg.AutoConfirm = viper.GetBool("auto-confirm") })
	applyFlag("reduced-functionality", func() { cfg.Flags.ReducedFunctionality = viper.GetBool("reduced-functionality") })
	applyFlag("offline-mode", func() { cfg.Flags.OfflineMode = viper.GetBool("offline-mode") })

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// defaultRotator builds fixed primary/fallback (tool, model) pools:
// claude and codex in the primary pool, a second claude model in the
// fallback pool. The entries are not filtered against the tools Discover
// found installed; dispatching to an entry whose tool was not found makes
// Executor.Run return ErrUnknownTool.
func defaultRotator() *rotator.Rotator {
	exec := []rotator.Entry{
		{Name: "claude-primary", Tool: "claude", Model: "claude-opus-4"},
		{Name: "codex-primary", Tool: "codex", Model: "gpt-5-codex"},
	}
	fb := []rotator.Entry{
		{Name: "claude-fallback", Tool: "claude", Model: "claude-sonnet-4"},
	}
	return rotator.New(exec, fb)
}

// buildScheduler wires a Store, Rotator, Executor, Plugin Bus, and State
// Store into a ready-to-run Scheduler dependency
// binding table.
func buildScheduler(cfg config.Config) (*scheduler.Scheduler, error) {
	var store task.Store
	switch cfg.Backend {
	case "json":
		js, err := jsonstore.Open(cfg.StoreDir())
		if err != nil {
			return nil, fmt.Errorf("open json store: %w", err)
		}
		queue, err := fallback.NewOfflineQueue(cfg.StoreDir() + "/offline-queue.jsonl")
		if err != nil {
			return nil, fmt.Errorf("open offline queue: %w", err)
		}
		checkpoints := reliability.NewCheckpointManager(cfg.StateDir() + "/checkpoints")
		store = fallback.New(js, nil, queue).WithCheckpoints(checkpoints, "offline-queue-drain:"+cfg.Namespace)
	default:
		return nil, fmt.Errorf("backend %q not implemented", cfg.Backend)
	}

	exec, err := executor.New(executor.DefaultToolSpecs())
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	rot := defaultRotator()

	registry := plugin.NewRegistry()
	bus := plugin.NewBus(registry)
	bus.ReducedFunctionality = cfg.Flags.ReducedFunctionality
	bus.OfflineMode = cfg.Flags.OfflineMode

	stateStore, err := state.Open(cfg.StateDir(), cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	log := logging.New(viper.GetBool("json-logs"))
	sessionRoot := cfg.SessionRoot(sessionTimestamp())

	sched := scheduler.New(cfg, store, rot, exec, bus, stateStore, log, sessionRoot)
	return sched, nil
}

// sessionTimestamp names one run's log directory. Using RFC3339 in basic
// form keeps it both sortable and filesystem-safe.
func sessionTimestamp() string {
	return timeNow().Format("20060102T150405Z0700")
}

// timeNow is the single seam callers substitute in tests.
var timeNow = time.Now
