package database

import (
	"context"
)

const getCategoryByID = `-- name: GetCategoryByID :one
SELECT id, name, slug FROM categories
WHERE id = $1
`

func (q *Queries) GetCategoryByID(ctx context.Context, id int64) (Category, error) {
	row := q.db.QueryRow(ctx, getCategoryByID, id)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.Slug)
	return i, err
}

const getCategoryBySlug = `-- name: GetCategoryBySlug :one
SELECT id, name, slug FROM categories
WHERE slug = $1
`

func (q *Queries) GetCategoryBySlug(ctx context.Context, slug string) (Category, error) {
	row := q.db.QueryRow(ctx, getCategoryBySlug, slug)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.Slug)
	return i, err
}

const insertCategory = `-- name: InsertCategory :one
INSERT INTO categories (name, slug)
VALUES ($1, $2)
RETURNING id
`

type InsertCategoryParams struct {
	Name string
	Slug string
}

func (q *Queries) InsertCategory(ctx context.Context, arg InsertCategoryParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertCategory, arg.Name, arg.Slug)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertCategoryWithID = `-- name: InsertCategoryWithID :exec
INSERT INTO categories (id, name, slug)
VALUES ($1, $2, $3)
`

type InsertCategoryWithIDParams struct {
	ID   int64
	Name string
	Slug string
}

func (q *Queries) InsertCategoryWithID(ctx context.Context, arg InsertCategoryWithIDParams) error {
	_, err := q.db.Exec(ctx, insertCategoryWithID, arg.ID, arg.Name, arg.Slug)
	return err
}

const listCategories = `-- name: ListCategories :many
SELECT id, name, slug FROM categories
ORDER BY name, id
`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var i Category
		if err := rows.Scan(&i.ID, &i.Name, &i.Slug); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const resyncCategoryIDs = `-- name: ResyncCategoryIDs :exec
SELECT setval(pg_get_serial_sequence('categories', 'id'), COALESCE((SELECT MAX(id) FROM categories), 0) + 1, false)
`

func (q *Queries) ResyncCategoryIDs(ctx context.Context) error {
	_, err := q.db.Exec(ctx, resyncCategoryIDs)
	return err
}
