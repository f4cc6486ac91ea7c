package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newRootCmd wires the subcommands. Configuration comes from the
// environment, see config.FromEnv.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fhiraudit",
		Short:         "FHIR server with an audit trail and process-mining export",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newExportCmd())
	return rootCmd
}
