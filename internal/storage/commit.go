package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/korhy/cookbook/internal/core"
	db "github.com/korhy/cookbook/internal/database"
)

// generatedID is an id returned by an auto-id insert, written back to the
// entity once the transaction commits.
type generatedID struct {
	entity core.Entity
	id     int64
}

// Commit applies every staged write in one transaction. A write refused by
// the database is rolled back to its savepoint and returned as rejected; any
// other failure aborts the whole commit.
func (s *Store) Commit(ctx context.Context) ([]core.RejectedWrite, error) {
	s.mu.Lock()
	writes := s.pending
	s.pending = nil
	strategy := make(map[core.EntityKind]core.IDStrategy, len(s.strategy))
	for k, v := range s.strategy {
		strategy[k] = v
	}
	s.mu.Unlock()

	if len(writes) == 0 {
		return nil, nil
	}

	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	c := &committer{
		ctx:      ctx,
		tx:       tx,
		q:        s.q.WithTx(tx),
		strategy: strategy,
		assigned: make(map[core.EntityKind]bool),
	}

	for i := 0; i < len(writes); {
		if n := linkRun(writes[i:]); s.copyThreshold > 0 && n >= s.copyThreshold {
			copied, err := c.copyLinks(i, writes[i:i+n])
			if err != nil {
				return nil, err
			}
			if copied {
				i += n
				continue
			}
			s.logger.Debug("copy failed, inserting links one by one", "rows", n)
			for j := i; j < i+n; j++ {
				if err := c.insertIsolated(j, writes[j]); err != nil {
					return nil, err
				}
			}
			i += n
			continue
		}
		if err := c.insertIsolated(i, writes[i]); err != nil {
			return nil, err
		}
		i++
	}

	if err := c.resyncSequences(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, g := range c.generated {
		setID(g.entity, g.id)
	}

	s.logger.Debug("batch committed",
		"writes", len(writes),
		"rejected", len(c.rejected),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return c.rejected, nil
}

// linkRun counts the leading writes that are recipe-ingredient links.
func linkRun(writes []core.StagedWrite) int {
	n := 0
	for _, w := range writes {
		if _, ok := w.Entity.(*core.RecipeIngredient); !ok {
			break
		}
		n++
	}
	return n
}

type committer struct {
	ctx       context.Context
	tx        pgx.Tx
	q         *db.Queries
	strategy  map[core.EntityKind]core.IDStrategy
	assigned  map[core.EntityKind]bool
	generated []generatedID
	rejected  []core.RejectedWrite
}

// insertIsolated inserts one write under savepoint sp_<idx>. Only savepoint
// failures are returned; insert failures become rejections.
func (c *committer) insertIsolated(idx int, w core.StagedWrite) error {
	savepointName := fmt.Sprintf("sp_%d", idx)
	if _, err := c.tx.Exec(c.ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("failed to create savepoint at %s:%d: %w", w.File, w.Line, err)
	}

	gen, err := c.insert(w.Entity)
	if err != nil {
		// Rollback to savepoint to recover transaction state
		if _, rbErr := c.tx.Exec(c.ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			return fmt.Errorf("failed to rollback savepoint at %s:%d: %w", w.File, w.Line, rbErr)
		}
		c.rejected = append(c.rejected, core.RejectedWrite{StagedWrite: w, Err: err})
		return nil
	}

	if _, err := c.tx.Exec(c.ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("failed to release savepoint at %s:%d: %w", w.File, w.Line, err)
	}
	if gen != nil {
		c.generated = append(c.generated, *gen)
	}
	return nil
}

// copyLinks sends a run of links through COPY under one savepoint. It
// reports false, with the transaction restored, when the copy was refused.
func (c *committer) copyLinks(idx int, writes []core.StagedWrite) (bool, error) {
	savepointName := fmt.Sprintf("sp_copy_%d", idx)
	if _, err := c.tx.Exec(c.ctx, "SAVEPOINT "+savepointName); err != nil {
		return false, fmt.Errorf("failed to create copy savepoint: %w", err)
	}

	rows := make([]db.CopyRecipeIngredientsParams, len(writes))
	for i, w := range writes {
		l := w.Entity.(*core.RecipeIngredient)
		rows[i] = db.CopyRecipeIngredientsParams{
			RecipeID:     l.RecipeID,
			IngredientID: l.IngredientID,
			Quantity:     toFloat8(l.Quantity),
		}
	}

	if _, err := c.q.CopyRecipeIngredients(c.ctx, rows); err != nil {
		if _, rbErr := c.tx.Exec(c.ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			return false, fmt.Errorf("failed to rollback copy savepoint: %w", rbErr)
		}
		return false, nil
	}

	if _, err := c.tx.Exec(c.ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
		return false, fmt.Errorf("failed to release copy savepoint: %w", err)
	}
	return true, nil
}

func (c *committer) assignedIDs(kind core.EntityKind) bool {
	return c.strategy[kind] == core.IDAssigned
}

// insert writes one entity and returns the generated id, if any.
func (c *committer) insert(e core.Entity) (*generatedID, error) {
	switch e := e.(type) {
	case *core.Category:
		if c.assignedIDs(core.KindCategory) {
			if e.ID <= 0 {
				return nil, fmt.Errorf("category %q: assigned id required", e.Slug)
			}
			c.assigned[core.KindCategory] = true
			return nil, c.q.InsertCategoryWithID(c.ctx, db.InsertCategoryWithIDParams{ID: e.ID, Name: e.Name, Slug: e.Slug})
		}
		id, err := c.q.InsertCategory(c.ctx, db.InsertCategoryParams{Name: e.Name, Slug: e.Slug})
		if err != nil {
			return nil, err
		}
		return &generatedID{entity: e, id: id}, nil

	case *core.Ingredient:
		if c.assignedIDs(core.KindIngredient) {
			if e.ID <= 0 {
				return nil, fmt.Errorf("ingredient %q: assigned id required", e.Name)
			}
			c.assigned[core.KindIngredient] = true
			return nil, c.q.InsertIngredientWithID(c.ctx, db.InsertIngredientWithIDParams{ID: e.ID, Name: e.Name})
		}
		id, err := c.q.InsertIngredient(c.ctx, e.Name)
		if err != nil {
			return nil, err
		}
		return &generatedID{entity: e, id: id}, nil

	case *core.Recipe:
		if c.assignedIDs(core.KindRecipe) {
			if e.ID <= 0 {
				return nil, fmt.Errorf("recipe %q: assigned id required", e.Slug)
			}
			c.assigned[core.KindRecipe] = true
			return nil, c.q.InsertRecipeWithID(c.ctx, recipeWithIDParams(e))
		}
		id, err := c.q.InsertRecipe(c.ctx, recipeParams(e))
		if err != nil {
			return nil, err
		}
		return &generatedID{entity: e, id: id}, nil

	case *core.RecipeIngredient:
		return nil, c.q.InsertRecipeIngredient(c.ctx, db.InsertRecipeIngredientParams{
			RecipeID:     e.RecipeID,
			IngredientID: e.IngredientID,
			Quantity:     toFloat8(e.Quantity),
		})
	}
	return nil, fmt.Errorf("unsupported entity %T", e)
}

// resyncSequences moves identity sequences past explicitly inserted ids so
// later auto-id inserts do not collide.
func (c *committer) resyncSequences() error {
	resync := map[core.EntityKind]func(context.Context) error{
		core.KindCategory:   c.q.ResyncCategoryIDs,
		core.KindIngredient: c.q.ResyncIngredientIDs,
		core.KindRecipe:     c.q.ResyncRecipeIDs,
	}
	for kind := range c.assigned {
		if err := resync[kind](c.ctx); err != nil {
			return fmt.Errorf("resync %s ids: %w", kind, err)
		}
	}
	return nil
}

func categoryID(r *core.Recipe) int64 {
	if r.Category == nil {
		return 0
	}
	return r.Category.ID
}

func recipeParams(r *core.Recipe) db.InsertRecipeParams {
	return db.InsertRecipeParams{
		Title:       r.Title,
		Slug:        r.Slug,
		Description: r.Description,
		Duration:    toInt4(r.Duration),
		Thumbnail:   toText(r.Thumbnail),
		Ingredients: toText(r.Ingredients),
		Directions:  toText(r.Directions),
		CategoryID:  toInt8(categoryID(r)),
		CreatedAt:   toTimestamptz(r.CreatedAt),
	}
}

func recipeWithIDParams(r *core.Recipe) db.InsertRecipeWithIDParams {
	p := recipeParams(r)
	return db.InsertRecipeWithIDParams{
		ID:          r.ID,
		Title:       p.Title,
		Slug:        p.Slug,
		Description: p.Description,
		Duration:    p.Duration,
		Thumbnail:   p.Thumbnail,
		Ingredients: p.Ingredients,
		Directions:  p.Directions,
		CategoryID:  p.CategoryID,
		CreatedAt:   p.CreatedAt,
	}
}

func setID(e core.Entity, id int64) {
	switch e := e.(type) {
	case *core.Category:
		e.ID = id
	case *core.Ingredient:
		e.ID = id
	case *core.Recipe:
		e.ID = id
	}
}
