package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fhiraudit/internal/fhir"
	"fhiraudit/internal/mining"
)

func newExportCmd() *cobra.Command {
	var (
		out  string
		plan string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the audit trail as an XES event log",
		Long:  "Reads every audit record of the configured store and writes the event log of a workflow definition in XES.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			s, closeStore, err := openStore(ctx, cfg.Store, false, log)
			if err != nil {
				return err
			}
			defer closeStore()

			resolver, redisClient, err := newAnchorResolver(ctx, cfg, s, log)
			if err != nil {
				return err
			}
			if redisClient != nil {
				defer func() { _ = redisClient.Close() }()
			}

			var workflow fhir.Reference
			if plan != "" {
				workflow = fhir.NewReference(fhir.TypePlanDefinition, plan)
			}
			eventLog, err := mining.NewExporter(s, resolver, mining.WithLogger(log)).Export(ctx, workflow)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := eventLog.WriteXES(w); err != nil {
				return err
			}
			if out != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d traces to %s\n", len(eventLog.Traces), out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&plan, "plan", "", "PlanDefinition id to export (default: configured workflow)")
	return cmd
}
