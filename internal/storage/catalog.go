package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/korhy/cookbook/internal/core"
	db "github.com/korhy/cookbook/internal/database"
)

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.q.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, c := range rows {
		out = append(out, core.Category{ID: c.ID, Name: c.Name, Slug: c.Slug})
	}
	return out, nil
}

func (s *Store) ListRecipes(ctx context.Context, f core.RecipeFilter) ([]core.Recipe, error) {
	rows, err := s.q.ListRecipes(ctx, listParams(f))
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	out := make([]core.Recipe, 0, len(rows))
	for _, r := range rows {
		out = append(out, recipeFromRow(r))
	}
	return out, nil
}

func (s *Store) GetRecipe(ctx context.Context, id int64) (*core.RecipeDetail, error) {
	r, err := s.q.GetRecipeByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe %d: %w", id, err)
	}

	lines, err := s.q.ListRecipeLines(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list lines of recipe %d: %w", id, err)
	}

	d := &core.RecipeDetail{Recipe: recipeFromRow(r), Lines: make([]core.IngredientLine, 0, len(lines))}
	for _, l := range lines {
		d.Lines = append(d.Lines, core.IngredientLine{
			IngredientID: l.IngredientID,
			Name:         l.Name.String,
			Quantity:     fromFloat8(l.Quantity),
		})
	}
	return d, nil
}

func listParams(f core.RecipeFilter) db.ListRecipesParams {
	p := db.ListRecipesParams{
		Limit:  int32(core.NormalizeLimit(f.Limit)),
		Offset: int32(max(f.Offset, 0)),
	}
	if f.CategorySlug != "" {
		p.CategorySlug = pgtype.Text{String: f.CategorySlug, Valid: true}
	}
	p.MaxDuration = toInt4(f.MaxDuration)
	return p
}

func recipeFromRow(r db.RecipeWithCategory) core.Recipe {
	rec := core.Recipe{
		ID:          r.ID,
		Title:       r.Title,
		Slug:        r.Slug,
		Description: r.Description,
		Duration:    fromInt4(r.Duration),
		Thumbnail:   fromText(r.Thumbnail),
		Ingredients: fromText(r.Ingredients),
		Directions:  fromText(r.Directions),
		CreatedAt:   fromTimestamptz(r.CreatedAt),
	}
	if r.CategoryID.Valid {
		rec.Category = &core.Category{
			ID:   r.CategoryID.Int64,
			Name: r.CategoryName.String,
			Slug: r.CategorySlug.String,
		}
	}
	return rec
}
