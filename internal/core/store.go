package core

import "context"

// Store is the persistence port used by the import pipeline.
//
// Finds return (nil, nil) when no row matches. Save stages an entity in the
// current session; nothing is durable until Commit. Commit writes the staged
// entities in staging order and returns the ones the database refused, so a
// single bad row does not fail the batch. ResetSession drops every staged and
// loaded entity and advances Generation.
type Store interface {
	FindCategoryBySlug(ctx context.Context, slug string) (*Category, error)
	FindCategoryByID(ctx context.Context, id int64) (*Category, error)
	FindIngredientByID(ctx context.Context, id int64) (*Ingredient, error)
	FindRecipeByID(ctx context.Context, id int64) (*Recipe, error)

	SetIDStrategy(ctx context.Context, kind EntityKind, strategy IDStrategy) error

	Save(ctx context.Context, w StagedWrite) error
	Commit(ctx context.Context) ([]RejectedWrite, error)
	ResetSession()
	Generation() uint64
}

// StagedWrite is an entity waiting for the next commit, with the input
// position it came from.
type StagedWrite struct {
	File   string
	Line   int
	Entity Entity
}

// RejectedWrite is a staged write the store could not persist.
type RejectedWrite struct {
	StagedWrite
	Err error
}

// RunRecorder persists stage summaries for later inspection.
type RunRecorder interface {
	RecordStage(ctx context.Context, runID string, result *StageResult) error
}

// Observer receives pipeline events, typically for metrics.
type Observer interface {
	RowProcessed(stage Stage)
	RowSkipped(stage Stage)
	RowFailed(stage Stage)
	RowRejected(stage Stage)
	BatchCommitted(stage Stage, rows int, seconds float64)
	StageFinished(result *StageResult)
}

type nopObserver struct{}

func (nopObserver) RowProcessed(Stage) {}
func (nopObserver) RowSkipped(Stage) {}
func (nopObserver) RowFailed(Stage) {}
func (nopObserver) RowRejected(Stage) {}
func (nopObserver) BatchCommitted(Stage, int, float64) {}
func (nopObserver) StageFinished(*StageResult) {}
