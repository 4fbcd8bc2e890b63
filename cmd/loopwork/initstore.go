package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nadimtuhin/loopwork/internal/store/jsonstore"
)

var initStoreCmd = &cobra.Command{
	Use:   "init-store",
	Short: "Create an empty JSON task store at --project-root.",
	RunE:  runInitStore,
}

func runInitStore(cmd *cobra.Command, args []string) error {
	projectRoot := viper.GetString("project-root")
	if _, err := jsonstore.Open(projectRoot); err != nil {
		return err
	}
	fmt.Printf("initialized task store at %s/store.json\n", projectRoot)
	return nil
}
