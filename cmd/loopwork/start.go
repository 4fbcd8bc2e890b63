package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nadimtuhin/loopwork/internal/supervisor"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the loop detached in the background via the Process Supervisor.",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sup, err := supervisorFor(cfg.ProjectRoot, cfg.Namespace)
	if err != nil {
		return err
	}

	runArgs := append([]string{"run"}, os.Args[2:]...)
	pid, err := sup.Start(runArgs)
	if err != nil {
		return err
	}
	fmt.Printf("loopwork started, namespace=%s pid=%d\n", cfg.Namespace, pid)
	return nil
}

func supervisorFor(projectRoot, namespace string) (*supervisor.Supervisor, error) {
	return supervisor.New(projectRoot + "/.loopwork/run/" + namespace)
}
