package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nadimtuhin/loopwork/internal/metrics"
	"github.com/nadimtuhin/loopwork/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the loop in the foreground until the backlog is empty or a limit is reached.",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sched, err := buildScheduler(cfg)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		sched.StartingTaskID = args[0]
	}

	if viper.GetBool("resume") {
		if err := applyResume(sched, viper.GetBool("resume-reset")); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if addr := viper.GetString("metrics-addr"); addr != "" {
		srv := metrics.NewServer(addr, "")
		srv.Start(nil)
		defer srv.Stop(context.Background())
	}

	err = sched.Run(ctx)
	switch {
	case errors.Is(err, scheduler.ErrCanceled):
		os.Exit(130)
		return nil
	case errors.Is(err, scheduler.ErrBacklogEmpty), errors.Is(err, scheduler.ErrCircuitOpen):
		fmt.Println(err)
		return nil
	default:
		return err
	}
}

// exitCodeFor maps an error Execute sees back from cobra to a process
// exit code. run's own normal-termination cases are handled inside
// runRun and never reach here as non-nil errors.
func exitCodeFor(err error) int {
	if errors.Is(err, scheduler.ErrCanceled) {
		return 130
	}
	return 1
}
