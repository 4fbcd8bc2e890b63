package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a backgrounded loop started with `start`.",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().Bool("force", false, "send SIGKILL immediately instead of waiting out the stop timeout")
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sup, err := supervisorFor(cfg.ProjectRoot, cfg.Namespace)
	if err != nil {
		return err
	}
	if force, _ := cmd.Flags().GetBool("force"); force {
		sup.StopTimeout = 0
	}
	if err := sup.Stop(); err != nil {
		return err
	}
	fmt.Printf("loopwork stopped, namespace=%s\n", cfg.Namespace)
	return nil
}
