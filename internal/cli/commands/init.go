package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"metabridge/internal/config"
	"metabridge/internal/provider/sqlstore"
)

var initStore bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the metabridge config directory",
	Long: `Create the config directory with default settings.

With --store, also create an empty metadata store at the configured store path.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initStore, "store", false, "also create the metadata store")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	created, err := config.InitConfigDir()
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Initialized metabridge config in %s\n", config.ConfigDir())
	} else {
		fmt.Printf("  settings.yaml already exists (not modified)\n")
	}

	if !initStore {
		return nil
	}
	s, err := sqlstore.Create(settings.StorePath, sqlstore.Options{BusyTimeout: settings.BusyTimeoutMs})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer s.Close()
	fmt.Printf("  created store %s\n", s.Path())
	return nil
}
