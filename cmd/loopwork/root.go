package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd wires persistent flags to a shared viper instance, the way
// 88lin-divinesense/cmd/divinesense/main.go binds its flags once in
// init() rather than per-subcommand.
var rootCmd = &cobra.Command{
	Use:   "loopwork",
	Short: "Loop an external AI CLI tool over a task backlog until it's empty.",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("project-root", ".", "project root directory")
	flags.String("backend", "json", "task store backend (json|github)")
	flags.String("namespace", "default", "run namespace; isolates the state lock and session logs")
	flags.String("feature", "", "restrict task selection to this feature")
	flags.Int("max-iterations", 50, "maximum loop iterations before exiting")
	flags.Int("timeout", 600, "per-task subprocess timeout, seconds")
	flags.Int("max-retries", 3, "per-task retry attempts before marking failed")
	flags.Int("circuit-breaker-threshold", 5, "consecutive task failures before the loop exits with CircuitOpen")
	flags.Int("retry-delay", 3000, "delay between per-task retries, milliseconds")
	flags.Int("task-delay", 2000, "delay between iterations, milliseconds")
	flags.Bool("dry-run", false, "select tasks and build prompts without dispatching")
	flags.Bool("auto-confirm", false, "skip interactive confirmations")
	flags.Bool("reduced-functionality", false, "gate non-critical plugins off")
	flags.Bool("offline-mode", false, "gate network-requiring plugins off")
	flags.Bool("resume", false, "resume from persisted state if present")
	flags.Bool("resume-reset", false, "on --resume, also reset an orphaned in-progress task to pending")
	flags.Bool("json-logs", false, "emit structured JSON logs instead of text")
	flags.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")

	for _, name := range []string{
		"project-root", "backend", "namespace", "feature",
		"max-iterations", "timeout", "max-retries", "circuit-breaker-threshold",
		"retry-delay", "task-delay", "dry-run", "auto-confirm",
		"reduced-functionality", "offline-mode", "resume", "resume-reset",
		"json-logs", "metrics-addr",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("LOOPWORK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(runCmd, startCmd, stopCmd, restartCmd, statusCmd, initStoreCmd)
}

// Execute runs the root command, translating a scheduler.ErrCanceled
// return into exit code 130
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}
