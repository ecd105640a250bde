package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/korhy/cookbook/internal/admin"
	"github.com/korhy/cookbook/internal/core"
	"github.com/korhy/cookbook/internal/database"
	"github.com/korhy/cookbook/internal/storage"
)

func newResetCmd(a *app) *cobra.Command {
	var yes, history bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Truncate the catalog tables and restart their ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfirmation(yes, "reset the catalog"); err != nil {
				return err
			}
			if err := a.cfg.RequireDatabase(); err != nil {
				return err
			}
			pool, err := database.Connect(cmd.Context(), a.cfg.Database, a.logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			r := &admin.Resetter{DB: pool}
			if err := r.ResetCatalog(cmd.Context(), history); err != nil {
				return err
			}
			a.logger.Info("catalog reset", "history", history)
			fmt.Fprintln(cmd.OutOrStdout(), "catalog reset")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	cmd.Flags().BoolVar(&history, "history", false, "also clear the import run history")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded import stages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.RequireDatabase(); err != nil {
				return err
			}
			pool, err := database.Connect(cmd.Context(), a.cfg.Database, a.logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			stages, err := storage.New(pool, storage.WithLogger(a.logger)).RecentStages(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeHistory(cmd, stages, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of stages to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print as JSON")
	return cmd
}

func writeHistory(cmd *cobra.Command, stages []core.RecordedStage, asJSON bool) error {
	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stages)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tRUN\tSTAGE\tPROCESSED\tERRORS\tREJECTED\tTRIGGER")
	for _, s := range stages {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.FinishedAt.Format("2006-01-02 15:04:05"), s.RunID, s.Stage, s.Processed, s.Errors, s.Rejected, s.Trigger)
	}
	return tw.Flush()
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the catalog DDL for the database administrator",
		Args:  cobra.NoArgs,
		// No configuration is needed to print the schema.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), database.Schema)
			return err
		},
	}
}
