package database

import (
	"context"
)

// iteratorForCopyRecipeIngredients implements pgx.CopyFromSource.
type iteratorForCopyRecipeIngredients struct {
	rows                 []CopyRecipeIngredientsParams
	skippedFirstNextCall bool
}

func (r *iteratorForCopyRecipeIngredients) Next() bool {
	if len(r.rows) == 0 {
		return false
	}
	if !r.skippedFirstNextCall {
		r.skippedFirstNextCall = true
		return true
	}
	r.rows = r.rows[1:]
	return len(r.rows) > 0
}

func (r iteratorForCopyRecipeIngredients) Values() ([]interface{}, error) {
	return []interface{}{
		r.rows[0].RecipeID,
		r.rows[0].IngredientID,
		r.rows[0].Quantity,
	}, nil
}

func (r iteratorForCopyRecipeIngredients) Err() error {
	return nil
}

// CopyRecipeIngredients bulk-loads links with the COPY protocol. One bad row
// fails the whole copy.
func (q *Queries) CopyRecipeIngredients(ctx context.Context, arg []CopyRecipeIngredientsParams) (int64, error) {
	return q.db.CopyFrom(ctx, []string{"recipe_ingredients"}, []string{"recipe_id", "ingredient_id", "quantity"}, &iteratorForCopyRecipeIngredients{rows: arg})
}
