package database

import (
	"context"
)

const resetRecipeIngredients = `-- name: ResetRecipeIngredients :exec
TRUNCATE recipe_ingredients RESTART IDENTITY
`

func (q *Queries) ResetRecipeIngredients(ctx context.Context) error {
	_, err := q.db.Exec(ctx, resetRecipeIngredients)
	return err
}

const resetRecipes = `-- name: ResetRecipes :exec
TRUNCATE recipes RESTART IDENTITY CASCADE
`

func (q *Queries) ResetRecipes(ctx context.Context) error {
	_, err := q.db.Exec(ctx, resetRecipes)
	return err
}

const resetIngredients = `-- name: ResetIngredients :exec
TRUNCATE ingredients RESTART IDENTITY CASCADE
`

func (q *Queries) ResetIngredients(ctx context.Context) error {
	_, err := q.db.Exec(ctx, resetIngredients)
	return err
}

const resetCategories = `-- name: ResetCategories :exec
TRUNCATE categories RESTART IDENTITY CASCADE
`

func (q *Queries) ResetCategories(ctx context.Context) error {
	_, err := q.db.Exec(ctx, resetCategories)
	return err
}
