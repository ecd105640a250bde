package core

import (
	"context"
	"strconv"
	"strings"
)

// Minimum column counts per row shape.
const (
	categoryColumns            = 2 // name, id
	ingredientColumns          = 2 // name, id
	keyedRecipeColumns         = 4 // id, title, description, category_id [, duration [, thumbnail]]
	selfContainedRecipeColumns = 8 // title, category, subcategory, description, ingredients, directions, num_ingredients, num_steps
	recipeIngredientColumns    = 4 // recipe_id, quantity, unit_id, ingredient_id
)

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

func rowErr(err error) error {
	return &RowError{Reason: err.Error()}
}

// categoryRows deduplicates categories by slug. A repeated slug is skipped;
// a repeated id carrying a different slug is a row error.
func categoryRows(im *Importer, sc *stageRun) rowHandler {
	bySlug := NewReconciler("category", im.store,
		func(ctx context.Context, slug string) (*Category, error) {
			return im.store.FindCategoryBySlug(ctx, slug)
		},
		func(ctx context.Context, c *Category) error { return sc.batch.Stage(ctx, c) },
		im.opts.DryRun,
	)
	sc.batch.OnReset(bySlug.ClearBatch)
	slugByID := make(map[int64]string)

	return func(ctx context.Context, rec Record) (rowOutcome, error) {
		name, err := RequireText("name", rec.Fields[0])
		if err != nil {
			return 0, rowErr(err)
		}
		id, err := ParseID("id", rec.Fields[1])
		if err != nil {
			return 0, rowErr(err)
		}
		slug := Slugify(name)
		if slug == "" {
			return 0, rowErrorf(rec.Line, "name %q has no usable characters for a slug", name)
		}
		if prev, ok := slugByID[id]; ok && prev != slug {
			return 0, rowErrorf(rec.Line, "duplicate category id %d (already used by %q)", id, prev)
		}

		_, outcome, err := bySlug.Resolve(ctx, slug, func() *Category {
			return &Category{ID: id, Name: name}
		})
		if err != nil {
			return 0, err
		}
		if outcome != Created {
			return rowSkipped, nil
		}
		slugByID[id] = slug
		return rowProcessed, nil
	}
}

// ingredientRows skips ingredients whose id already exists in the store.
func ingredientRows(im *Importer, sc *stageRun) rowHandler {
	byID := NewReconciler("ingredient", im.store,
		func(ctx context.Context, key string) (*Ingredient, error) {
			id, _ := strconv.ParseInt(key, 10, 64)
			return im.store.FindIngredientByID(ctx, id)
		},
		func(ctx context.Context, i *Ingredient) error { return sc.batch.Stage(ctx, i) },
		im.opts.DryRun,
	)
	sc.batch.OnReset(byID.ClearBatch)
	firstLine := make(map[int64]int)

	return func(ctx context.Context, rec Record) (rowOutcome, error) {
		name, err := RequireText("name", rec.Fields[0])
		if err != nil {
			return 0, rowErr(err)
		}
		id, err := ParseID("id", rec.Fields[1])
		if err != nil {
			return 0, rowErr(err)
		}
		if line, ok := firstLine[id]; ok {
			return 0, rowErrorf(rec.Line, "duplicate ingredient id %d (first seen on line %d)", id, line)
		}
		firstLine[id] = rec.Line

		_, outcome, err := byID.Resolve(ctx, idKey(id), func() *Ingredient {
			return &Ingredient{ID: id, Name: name}
		})
		if err != nil {
			return 0, err
		}
		if outcome != Created {
			return rowSkipped, nil
		}
		return rowProcessed, nil
	}
}

// keyedRecipeRows imports recipes with external ids. The category is looked
// up by id and left empty when it does not exist.
func keyedRecipeRows(im *Importer, sc *stageRun) rowHandler {
	categories := NewReconciler("category", im.store,
		func(ctx context.Context, key string) (*Category, error) {
			id, _ := strconv.ParseInt(key, 10, 64)
			return im.store.FindCategoryByID(ctx, id)
		},
		nil,
		im.opts.DryRun,
	)
	recipes := NewReconciler("recipe", im.store,
		func(ctx context.Context, key string) (*Recipe, error) {
			id, _ := strconv.ParseInt(key, 10, 64)
			return im.store.FindRecipeByID(ctx, id)
		},
		func(ctx context.Context, r *Recipe) error { return sc.batch.Stage(ctx, r) },
		im.opts.DryRun,
	)
	sc.batch.OnReset(categories.ClearBatch)
	sc.batch.OnReset(recipes.ClearBatch)
	firstLine := make(map[int64]int)

	return func(ctx context.Context, rec Record) (rowOutcome, error) {
		f := rec.Fields
		id, err := ParseID("id", f[0])
		if err != nil {
			return 0, rowErr(err)
		}
		title, err := RequireText("title", f[1])
		if err != nil {
			return 0, rowErr(err)
		}
		description, err := RequireText("description", f[2])
		if err != nil {
			return 0, rowErr(err)
		}
		if line, ok := firstLine[id]; ok {
			return 0, rowErrorf(rec.Line, "duplicate recipe id %d (first seen on line %d)", id, line)
		}
		firstLine[id] = rec.Line

		var category *Category
		if cid, ok := ParseOptionalID(f[3]); ok {
			if category, err = categories.Find(ctx, idKey(cid)); err != nil {
				return 0, err
			}
		}
		var duration *int32
		if len(f) > 4 {
			duration = ParseOptionalInt32(f[4])
		}
		var thumbnail *string
		if len(f) > 5 {
			thumbnail = OptionalText(f[5])
		}

		_, outcome, err := recipes.Resolve(ctx, idKey(id), func() *Recipe {
			return &Recipe{
				ID:          id,
				Title:       title,
				Description: description,
				Duration:    duration,
				Thumbnail:   thumbnail,
				Category:    category,
				CreatedAt:   im.now(),
			}
		})
		if err != nil {
			return 0, err
		}
		if outcome != Created {
			return rowSkipped, nil
		}
		return rowProcessed, nil
	}
}

// selfContainedRecipeRows imports recipes whose category is named inline.
// Unknown categories are created and committed before the recipe is staged.
// Subcategory and the two count columns are read but not persisted.
func selfContainedRecipeRows(im *Importer, sc *stageRun) rowHandler {
	categories := NewReconciler("category", im.store,
		func(ctx context.Context, slug string) (*Category, error) {
			return im.store.FindCategoryBySlug(ctx, slug)
		},
		func(ctx context.Context, c *Category) error { return sc.batch.StageReference(ctx, c) },
		im.opts.DryRun,
	)
	sc.batch.OnReset(categories.ClearBatch)

	return func(ctx context.Context, rec Record) (rowOutcome, error) {
		f := rec.Fields
		title, err := RequireText("title", f[0])
		if err != nil {
			return 0, rowErr(err)
		}
		description, err := RequireText("description", f[3])
		if err != nil {
			return 0, rowErr(err)
		}

		var category *Category
		if name := strings.TrimSpace(f[1]); name != "" {
			if slug := Slugify(name); slug != "" {
				category, _, err = categories.Resolve(ctx, slug, func() *Category {
					return &Category{Name: name}
				})
				if err != nil {
					return 0, err
				}
			}
		}

		if err := sc.batch.Stage(ctx, &Recipe{
			Title:       title,
			Description: description,
			Ingredients: OptionalText(f[4]),
			Directions:  OptionalText(f[5]),
			Category:    category,
			CreatedAt:   im.now(),
		}); err != nil {
			return 0, err
		}
		return rowProcessed, nil
	}
}

// recipeIngredientRows stores links by id. Neither side is checked for
// existence. A zero or non-numeric quantity is dropped without a warning.
func recipeIngredientRows(im *Importer, sc *stageRun) rowHandler {
	return func(ctx context.Context, rec Record) (rowOutcome, error) {
		f := rec.Fields
		recipeID, err := ParseID("recipe id", f[0])
		if err != nil {
			return 0, rowErr(err)
		}
		ingredientID, err := ParseID("ingredient id", f[3])
		if err != nil {
			return 0, rowErr(err)
		}

		if err := sc.batch.Stage(ctx, &RecipeIngredient{
			RecipeID:     recipeID,
			IngredientID: ingredientID,
			Quantity:     ParseQuantity(f[1]),
		}); err != nil {
			return 0, err
		}
		return rowProcessed, nil
	}
}
