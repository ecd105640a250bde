package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertRecipeIngredient = `-- name: InsertRecipeIngredient :exec
INSERT INTO recipe_ingredients (recipe_id, ingredient_id, quantity)
VALUES ($1, $2, $3)
`

type InsertRecipeIngredientParams struct {
	RecipeID     int64
	IngredientID int64
	Quantity     pgtype.Float8
}

func (q *Queries) InsertRecipeIngredient(ctx context.Context, arg InsertRecipeIngredientParams) error {
	_, err := q.db.Exec(ctx, insertRecipeIngredient, arg.RecipeID, arg.IngredientID, arg.Quantity)
	return err
}

type CopyRecipeIngredientsParams struct {
	RecipeID     int64
	IngredientID int64
	Quantity     pgtype.Float8
}

const listRecipeLines = `-- name: ListRecipeLines :many
SELECT ri.ingredient_id, i.name, ri.quantity
FROM recipe_ingredients ri
LEFT JOIN ingredients i ON i.id = ri.ingredient_id
WHERE ri.recipe_id = $1
ORDER BY ri.id
`

type ListRecipeLinesRow struct {
	IngredientID int64
	Name         pgtype.Text
	Quantity     pgtype.Float8
}

func (q *Queries) ListRecipeLines(ctx context.Context, recipeID int64) ([]ListRecipeLinesRow, error) {
	rows, err := q.db.Query(ctx, listRecipeLines, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListRecipeLinesRow
	for rows.Next() {
		var i ListRecipeLinesRow
		if err := rows.Scan(&i.IngredientID, &i.Name, &i.Quantity); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
