package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply resource store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver == "memory" {
				return fmt.Errorf("nothing to migrate for the memory store")
			}
			_, closeStore, err := openStore(cmd.Context(), cfg.Store, true, log)
			if err != nil {
				return err
			}
			closeStore()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s store\n", cfg.Store.Driver)
			return nil
		},
	}
}
