package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultBatchSize is the number of processed rows per commit.
const DefaultBatchSize = 50

// DefaultMaxWarnings caps the warnings kept on a StageResult. Counters and
// log output are not capped.
const DefaultMaxWarnings = 500

// ContextCheckInterval is how often (in records) a stage checks for
// cancellation.
var ContextCheckInterval = 100

// Default input file names, resolved against Files.Dir.
const (
	DefaultCategoriesFile        = "recipe_categories.csv"
	DefaultIngredientsFile       = "ingredients.csv"
	DefaultRecipesFile           = "recipes_final.csv"
	DefaultRecipeIngredientsFile = "recipe_ingredients.csv"
)

// Files locates the input of every stage. Relative names are joined to Dir.
type Files struct {
	Dir               string
	Categories        string
	Ingredients       string
	Recipes           string
	RecipeIngredients string
}

// DefaultFiles returns the standard file names under dir.
func DefaultFiles(dir string) Files {
	return Files{
		Dir:               dir,
		Categories:        DefaultCategoriesFile,
		Ingredients:       DefaultIngredientsFile,
		Recipes:           DefaultRecipesFile,
		RecipeIngredients: DefaultRecipeIngredientsFile,
	}
}

func (f Files) path(name string) string {
	if name == "" || filepath.IsAbs(name) || f.Dir == "" {
		return name
	}
	return filepath.Join(f.Dir, name)
}

// Options configure one import run.
type Options struct {
	Files       Files
	Reader      ReaderOptions
	BatchSize   int
	DryRun      bool
	Format      RecipeFormat
	MaxWarnings int
}

// Importer drives the staged import of the catalog files.
type Importer struct {
	store    Store
	opts     Options
	observer Observer
	recorder RunRecorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// ImporterOption customises an Importer.
type ImporterOption func(*Importer)

// WithObserver reports pipeline events to o.
func WithObserver(o Observer) ImporterOption {
	return func(im *Importer) { im.observer = o }
}

// WithRecorder persists a summary of every live stage.
func WithRecorder(r RunRecorder) ImporterOption {
	return func(im *Importer) { im.recorder = r }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) ImporterOption {
	return func(im *Importer) { im.logger = l }
}

// WithClock overrides the time source used for CreatedAt and durations.
func WithClock(now func() time.Time) ImporterOption {
	return func(im *Importer) { im.now = now }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) ImporterOption {
	return func(im *Importer) { im.newID = func() string { return id } }
}

// NewImporter returns an importer writing to store.
func NewImporter(store Store, opts Options, options ...ImporterOption) *Importer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxWarnings <= 0 {
		opts.MaxWarnings = DefaultMaxWarnings
	}
	if opts.Format == "" {
		opts.Format = RecipeFormatKeyed
	}
	opts.Reader = opts.Reader.withDefaults()

	im := &Importer{
		store:    store,
		opts:     opts,
		observer: nopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range options {
		o(im)
	}
	return im
}

// stagePlan is one stage to run plus the id strategies it needs.
type stagePlan struct {
	stage    Stage
	file     string
	minCols  int
	strategy map[EntityKind]IDStrategy
	build    func(im *Importer, sc *stageRun) rowHandler
}

func (im *Importer) plan() []stagePlan {
	f := im.opts.Files
	if im.opts.Format == RecipeFormatSelfContained {
		return []stagePlan{{
			stage:   StageRecipes,
			file:    f.path(f.Recipes),
			minCols: selfContainedRecipeColumns,
			strategy: map[EntityKind]IDStrategy{
				KindCategory: IDAuto,
				KindRecipe:   IDAuto,
			},
			build: selfContainedRecipeRows,
		}}
	}
	return []stagePlan{
		{
			stage:    StageCategories,
			file:     f.path(f.Categories),
			minCols:  categoryColumns,
			strategy: map[EntityKind]IDStrategy{KindCategory: IDAssigned},
			build:    categoryRows,
		},
		{
			stage:    StageIngredients,
			file:     f.path(f.Ingredients),
			minCols:  ingredientColumns,
			strategy: map[EntityKind]IDStrategy{KindIngredient: IDAssigned},
			build:    ingredientRows,
		},
		{
			stage:    StageRecipes,
			file:     f.path(f.Recipes),
			minCols:  keyedRecipeColumns,
			strategy: map[EntityKind]IDStrategy{KindRecipe: IDAssigned},
			build:    keyedRecipeRows,
		},
		{
			stage:    StageRecipeIngredients,
			file:     f.path(f.RecipeIngredients),
			minCols:  recipeIngredientColumns,
			strategy: map[EntityKind]IDStrategy{},
			build:    recipeIngredientRows,
		},
	}
}

// Run executes every stage in order. Row problems are reported on the result;
// a non-nil error means the run was aborted and later stages did not run.
// Stages already finished stay committed.
func (im *Importer) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:     im.newID(),
		DryRun:    im.opts.DryRun,
		Format:    im.opts.Format,
		StartTime: im.now(),
	}
	logger := im.logger.With("run_id", result.RunID)

	if err := im.opts.Reader.Validate(); err != nil {
		return result, fmt.Errorf("reader options: %w", err)
	}

	logger.Info("import started",
		"format", im.opts.Format,
		"batch_size", im.opts.BatchSize,
		"dry_run", im.opts.DryRun,
	)
	if im.opts.DryRun {
		logger.Warn("dry run: no data will be written")
	}

	for _, p := range im.plan() {
		sr, err := im.runStage(ctx, logger, p)
		if sr != nil {
			result.Stages = append(result.Stages, sr)
		}
		if err != nil {
			result.EndTime = im.now()
			logger.Error("import aborted", "stage", p.stage, "error", err)
			return result, err
		}
		im.recordStage(ctx, logger, result.RunID, sr)
	}

	result.EndTime = im.now()
	logger.Info("import finished",
		"processed", result.TotalProcessed(),
		"errors", result.TotalErrors(),
		"duration", result.EndTime.Sub(result.StartTime),
	)
	return result, nil
}

func (im *Importer) recordStage(ctx context.Context, logger *slog.Logger, runID string, sr *StageResult) {
	if im.recorder == nil || sr.DryRun {
		return
	}
	if err := im.recorder.RecordStage(ctx, runID, sr); err != nil {
		logger.Error("failed to record stage", "stage", sr.Stage, "error", err)
	}
}

// rowOutcome tells the stage loop how to count a handled row.
type rowOutcome int

const (
	rowProcessed rowOutcome = iota
	rowSkipped
)

type rowHandler func(ctx context.Context, rec Record) (rowOutcome, error)

// stageRun is the mutable state of one running stage.
type stageRun struct {
	im     *Importer
	result *StageResult
	batch  *BatchController
	logger *slog.Logger
}

func (sc *stageRun) warn(line int, reason string) {
	sc.logger.Warn("row skipped", "line", line, "reason", reason)
	if len(sc.result.Warnings) < sc.im.opts.MaxWarnings {
		sc.result.Warnings = append(sc.result.Warnings, RowWarning{
			FileName:   filepath.Base(sc.result.File),
			LineNumber: line,
			Reason:     reason,
		})
	} else {
		sc.result.Truncated++
	}
}

func (sc *stageRun) rowError(line int, reason string) {
	sc.result.Errors++
	sc.im.observer.RowFailed(sc.result.Stage)
	sc.warn(line, reason)
}

func (sc *stageRun) drainRejected() {
	for _, rw := range sc.batch.TakeRejected() {
		sc.result.Rejected++
		sc.warn(rw.Line, fmt.Sprintf("store rejected %s: %v", rw.Entity.Kind(), rw.Err))
	}
}

func (im *Importer) runStage(ctx context.Context, logger *slog.Logger, p stagePlan) (*StageResult, error) {
	logger = logger.With("stage", p.stage, "file", p.file)

	sr := &StageResult{
		Stage:     p.stage,
		File:      p.file,
		DryRun:    im.opts.DryRun,
		StartTime: im.now(),
	}
	finish := func() {
		sr.EndTime = im.now()
		sr.Duration = sr.EndTime.Sub(sr.StartTime)
	}

	reader, err := OpenDelimitedFile(p.file, im.opts.Reader)
	if err != nil {
		finish()
		return sr, err
	}
	defer reader.Close()

	for kind, strategy := range p.strategy {
		if err := im.store.SetIDStrategy(ctx, kind, strategy); err != nil {
			finish()
			return sr, fmt.Errorf("set %s id strategy: %w", kind, err)
		}
	}

	logger.Info("stage started", "batch_size", im.opts.BatchSize, "dry_run", im.opts.DryRun)

	sc := &stageRun{
		im:     im,
		result: sr,
		batch:  NewBatchController(im.store, p.stage, filepath.Base(p.file), im.opts.BatchSize, im.opts.DryRun, im.observer),
		logger: logger,
	}
	handle := p.build(im, sc)

	for n := 0; ; n++ {
		if n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				finish()
				return sr, fmt.Errorf("%s cancelled: %w", p.stage, err)
			}
		}

		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			finish()
			return sr, &FileAccessError{Path: p.file, Op: "read", Err: err}
		}

		if rec.Malformed {
			sc.rowError(rec.Line, "malformed line: "+rec.Problem)
			continue
		}
		if rec.Blank() {
			continue
		}
		if len(rec.Fields) < p.minCols {
			sc.rowError(rec.Line, fmt.Sprintf("expected at least %d columns, got %d", p.minCols, len(rec.Fields)))
			continue
		}

		sc.batch.BeginRow(rec.Line)
		outcome, err := handle(ctx, rec)
		if err != nil {
			var re *RowError
			if errors.As(err, &re) {
				sc.rowError(rec.Line, re.Reason)
				continue
			}
			finish()
			return sr, err
		}

		if outcome == rowSkipped {
			sr.Skipped++
			im.observer.RowSkipped(p.stage)
			continue
		}
		sr.Processed++
		if err := sc.batch.RowDone(ctx); err != nil {
			finish()
			return sr, err
		}
		sc.drainRejected()
	}

	if err := sc.batch.Flush(ctx); err != nil {
		finish()
		return sr, err
	}
	sc.drainRejected()

	sr.Commits = sc.batch.Commits()
	sr.Bytes = reader.BytesRead()
	finish()
	im.observer.StageFinished(sr)

	logger.Info("stage finished",
		"processed", sr.Processed,
		"skipped", sr.Skipped,
		"errors", sr.Errors,
		"rejected", sr.Rejected,
		"commits", sr.Commits,
		"dry_run", sr.DryRun,
		"duration", sr.Duration,
	)
	return sr, nil
}
