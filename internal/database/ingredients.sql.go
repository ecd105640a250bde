package database

import (
	"context"
)

const getIngredientByID = `-- name: GetIngredientByID :one
SELECT id, name FROM ingredients
WHERE id = $1
`

func (q *Queries) GetIngredientByID(ctx context.Context, id int64) (Ingredient, error) {
	row := q.db.QueryRow(ctx, getIngredientByID, id)
	var i Ingredient
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

const insertIngredient = `-- name: InsertIngredient :one
INSERT INTO ingredients (name)
VALUES ($1)
RETURNING id
`

func (q *Queries) InsertIngredient(ctx context.Context, name string) (int64, error) {
	row := q.db.QueryRow(ctx, insertIngredient, name)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertIngredientWithID = `-- name: InsertIngredientWithID :exec
INSERT INTO ingredients (id, name)
VALUES ($1, $2)
`

type InsertIngredientWithIDParams struct {
	ID   int64
	Name string
}

func (q *Queries) InsertIngredientWithID(ctx context.Context, arg InsertIngredientWithIDParams) error {
	_, err := q.db.Exec(ctx, insertIngredientWithID, arg.ID, arg.Name)
	return err
}

const resyncIngredientIDs = `-- name: ResyncIngredientIDs :exec
SELECT setval(pg_get_serial_sequence('ingredients', 'id'), COALESCE((SELECT MAX(id) FROM ingredients), 0) + 1, false)
`

func (q *Queries) ResyncIngredientIDs(ctx context.Context) error {
	_, err := q.db.Exec(ctx, resyncIngredientIDs)
	return err
}
