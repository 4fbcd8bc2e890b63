package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart a backgrounded loop with the same arguments it was last started with.",
	RunE:  runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sup, err := supervisorFor(cfg.ProjectRoot, cfg.Namespace)
	if err != nil {
		return err
	}
	pid, err := sup.Restart()
	if err != nil {
		return err
	}
	fmt.Printf("loopwork restarted, namespace=%s pid=%d\n", cfg.Namespace, pid)
	return nil
}
