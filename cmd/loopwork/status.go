package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nadimtuhin/loopwork/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a loop is running and what it was last doing.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sup, err := supervisorFor(cfg.ProjectRoot, cfg.Namespace)
	if err != nil {
		return err
	}
	procStatus := sup.Status()

	st, err := state.Open(cfg.StateDir(), cfg.Namespace)
	if err != nil {
		return err
	}
	loopState, err := st.LoadState()
	if err != nil {
		return err
	}

	if !procStatus.Running {
		fmt.Printf("namespace %s: not running\n", cfg.Namespace)
	} else if procStatus.Orphaned {
		fmt.Printf("namespace %s: running (pid %d, orphaned — not recognized as our own child)\n", cfg.Namespace, procStatus.PID)
	} else {
		fmt.Printf("namespace %s: running (pid %d)\n", cfg.Namespace, procStatus.PID)
	}

	if loopState == nil {
		fmt.Println("no resume state recorded")
		return nil
	}
	fmt.Printf("session %s: last task %s, iteration %d, started %s\n",
		loopState.SessionID, loopState.LastTaskRef, loopState.LastIteration, loopState.StartedAt)
	return nil
}
