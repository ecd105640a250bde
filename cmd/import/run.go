package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/korhy/cookbook/internal/config"
	"github.com/korhy/cookbook/internal/core"
	"github.com/korhy/cookbook/internal/database"
	"github.com/korhy/cookbook/internal/storage"
)

// importFlags override the IMPORT_* settings when given explicitly.
type importFlags struct {
	delimiter    string
	quote        string
	escape       string
	batchSize    int
	skipHeader   bool
	dryRun       bool
	dataDir      string
	recipeFormat string
	maxWarnings  int

	jsonOutput   bool
	validateOnly bool
}

func (f *importFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.delimiter, "delimiter", "d", ",", `field delimiter (one character, or "tab")`)
	fl.StringVar(&f.quote, "quote", `"`, "quote character")
	fl.StringVar(&f.escape, "escape", `\`, "escape character inside quoted fields")
	fl.IntVarP(&f.batchSize, "batch-size", "b", core.DefaultBatchSize, "processed rows per commit")
	fl.BoolVar(&f.skipHeader, "skip-header", false, "skip the first line of every file")
	fl.BoolVar(&f.dryRun, "dry-run", false, "parse and count without writing")
	fl.StringVar(&f.dataDir, "data-dir", "data", "directory holding the input files")
	fl.StringVar(&f.recipeFormat, "recipe-format", string(core.RecipeFormatKeyed), "recipe row shape: keyed or self-contained")
	fl.IntVar(&f.maxWarnings, "max-warnings", core.DefaultMaxWarnings, "warnings kept per stage in the report")
	fl.BoolVar(&f.jsonOutput, "json", false, "print the run result as JSON")
	fl.BoolVar(&f.validateOnly, "validate-only", false, "import into an in-memory store; no database needed")
}

// apply copies the flags the user set onto the import section.
func (f *importFlags) apply(cmd *cobra.Command, c *config.ImportConfig) error {
	fl := cmd.Flags()
	if fl.Changed("delimiter") {
		c.Delimiter = f.delimiter
	}
	if fl.Changed("quote") {
		c.Quote = f.quote
	}
	if fl.Changed("escape") {
		c.Escape = f.escape
	}
	if fl.Changed("batch-size") {
		c.BatchSize = f.batchSize
	}
	if fl.Changed("skip-header") {
		c.SkipHeader = f.skipHeader
	}
	if fl.Changed("dry-run") {
		c.DryRun = f.dryRun
	}
	if fl.Changed("data-dir") {
		c.DataDir = f.dataDir
	}
	if fl.Changed("recipe-format") {
		c.RecipeFormat = f.recipeFormat
	}
	if fl.Changed("max-warnings") {
		c.MaxWarnings = f.maxWarnings
	}
	return c.Revalidate()
}

func (a *app) runImport(cmd *cobra.Command, flags importFlags) error {
	ctx := core.ContextWithTrigger(cmd.Context(), core.TriggerCLI)

	opts, err := a.cfg.Import.Options()
	if err != nil {
		return err
	}

	var (
		store    core.Store
		recorder core.RunRecorder
	)
	if flags.validateOnly {
		a.logger.Info("validate only: importing into memory")
		store = core.NewMemoryStore()
	} else {
		if err := a.cfg.RequireDatabase(); err != nil {
			return err
		}
		pool, err := database.Connect(ctx, a.cfg.Database, a.logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		pgStore := storage.New(pool, storage.WithLogger(a.logger))
		store, recorder = pgStore, pgStore
	}

	options := []core.ImporterOption{core.WithLogger(a.logger)}
	if recorder != nil {
		options = append(options, core.WithRecorder(recorder))
	}

	result, runErr := core.NewImporter(store, opts, options...).Run(ctx)
	if result != nil {
		if err := writeReport(cmd.OutOrStdout(), result, flags.jsonOutput); err != nil {
			a.logger.Error("failed to write report", "error", err)
		}
	}
	return runErr
}

func writeReport(w io.Writer, res *core.RunResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return writeTextReport(w, res)
}

func writeTextReport(w io.Writer, res *core.RunResult) error {
	mode := "live"
	if res.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "Run %s (%s, %s recipes)\n\n", res.RunID, mode, res.Format)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tPROCESSED\tSKIPPED\tERRORS\tREJECTED\tCOMMITS\tDURATION")
	for _, s := range res.Stages {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.Stage, s.Processed, s.Skipped, s.Errors, s.Rejected, s.Commits, s.Duration.Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range res.Stages {
		if len(s.Warnings) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s warnings:\n", s.Stage)
		for _, warn := range s.Warnings {
			fmt.Fprintf(w, "  %s\n", warn)
		}
		if s.Truncated > 0 {
			fmt.Fprintf(w, "  ... %d more not shown\n", s.Truncated)
		}
	}

	fmt.Fprintf(w, "\n%d rows processed, %d errors\n", res.TotalProcessed(), res.TotalErrors())
	return nil
}

// confirmArg is the flag reset requires, spelled out for the error message.
const confirmArg = "--yes"

func requireConfirmation(yes bool, what string) error {
	if yes {
		return nil
	}
	return fmt.Errorf("refusing to %s without %s", what, confirmArg)
}
