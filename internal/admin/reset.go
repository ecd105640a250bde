// Package admin provides destructive maintenance operations on the catalog
// database.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	db "github.com/korhy/cookbook/internal/database"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

// Beginner is implemented by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Resetter empties catalog tables.
type Resetter struct {
	DB Beginner
}

type dbResetFn func(ctx context.Context) error

// ResetCatalog truncates every catalog table in one transaction and restarts
// identity sequences. Run history is kept unless withHistory is set.
func (r *Resetter) ResetCatalog(ctx context.Context, withHistory bool) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	q := db.New(tx)
	resets := []dbResetFn{
		q.ResetRecipeIngredients,
		q.ResetRecipes,
		q.ResetIngredients,
		q.ResetCategories,
	}
	if withHistory {
		resets = append(resets, q.ResetImportRuns)
	}

	if err := r.runResets(ctx, resets); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func (r *Resetter) runResets(ctx context.Context, resets []dbResetFn) error {
	for _, reset := range resets {
		if err := reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return nil
}
